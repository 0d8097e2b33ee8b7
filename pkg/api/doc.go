// Package api wires the HTTP surface: auth endpoints for the token
// lifecycle, workspace member administration, and the middleware
// stack every route passes through.
package api
