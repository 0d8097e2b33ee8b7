package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, falling back
// to a no-op logger so call sites never need a nil check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// NewEvent builds an event with actor and request context filled in
// from the context and, when present, the HTTP request.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if wsID := contextkeys.GetWorkspaceID(ctx); wsID != "" {
		event.WorkspaceID = wsID
	}

	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
		event.IPAddress = ClientIP(r)
		event.UserAgent = r.UserAgent()
	}

	return event
}

// LogAsync records an event on a separate goroutine so the request
// path never waits on the audit sink. Failures are logged, not
// propagated: audit writes must not turn a passing gate into an
// error.
func LogAsync(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	log := observability.FromContext(ctx)
	go func() {
		defer observability.RecoverPanic(log, "audit event write")
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := logger.Log(writeCtx, event); err != nil {
			log.WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
		}
	}()
}

// ClientIP extracts the client IP from the request, preferring proxy
// headers over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
