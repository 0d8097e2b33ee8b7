// Package middleware authenticates requests and composes the request
// gates in front of business handlers.
//
// A request passes the authenticator, then (for workspace routes) the
// access check, then the rate limiter. The gates are causally ordered
// but independently testable; the gateway only wires them together.
package middleware
