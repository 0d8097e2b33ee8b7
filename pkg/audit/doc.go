// Package audit provides security audit logging for authentication,
// authorization, and rate-limiting decisions.
//
// Every gate decision that matters for forensics (logins, refreshes,
// replay detections, denied access checks, exceeded limits) is
// recorded as an Event in the auth_audit_log table. Events carry the
// actor, request context, and a machine-readable event type; the
// detail that is withheld from end users (actual vs required roles,
// tripping rate-limit windows) lives in the event metadata.
//
// Writes go through LogAsync so the request path never blocks on the
// audit sink, and a failed write degrades to a warning log rather
// than failing the request.
package audit
