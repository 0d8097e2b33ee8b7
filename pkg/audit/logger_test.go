package audit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
)

// recordingLogger captures events for assertions
type recordingLogger struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (l *recordingLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingLogger) Close() error { return nil }

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestFromContextReturnsNopWhenUnset(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}

func TestWithLoggerRoundTrip(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)

	logger := FromContext(ctx)
	require.NoError(t, logger.Log(ctx, &Event{EventType: EventTypeAuthLogin}))
	assert.Equal(t, 1, rec.count())
}

func TestNewEventFromRequest(t *testing.T) {
	ctx := contextkeys.WithUserID(context.Background(), "user-1")
	ctx = contextkeys.WithRequestID(ctx, "req-9")
	ctx = contextkeys.WithWorkspaceID(ctx, "ws-3")

	r := httptest.NewRequest("DELETE", "/api/workspaces/ws-3/clones/7", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "test-agent")

	event := NewEvent(ctx, r, EventTypeAccessDenied, EventStatusDenied)

	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	assert.Equal(t, EventStatusDenied, event.Status)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "req-9", event.RequestID)
	assert.Equal(t, "ws-3", event.WorkspaceID)
	assert.Equal(t, "DELETE", event.Method)
	assert.Equal(t, "/api/workspaces/ws-3/clones/7", event.Path)
	assert.Equal(t, "203.0.113.9", event.IPAddress)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestNewEventWithoutRequest(t *testing.T) {
	event := NewEvent(context.Background(), nil, EventTypeAuthLogout, EventStatusSuccess)
	assert.Empty(t, event.Method)
	assert.Empty(t, event.IPAddress)
	assert.NotNil(t, event.Metadata)
}

func TestLogAsync(t *testing.T) {
	rec := &recordingLogger{}
	LogAsync(context.Background(), rec, &Event{EventType: EventTypeAuthRefresh})

	assert.Eventually(t, func() bool {
		return rec.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLogAsyncNilLogger(t *testing.T) {
	// Must not panic
	LogAsync(context.Background(), nil, &Event{})
}

func TestLogAsyncSwallowsErrors(t *testing.T) {
	rec := &recordingLogger{err: assert.AnError}
	LogAsync(context.Background(), rec, &Event{EventType: EventTypeAuthLogin})

	assert.Eventually(t, func() bool {
		return rec.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		realIP   string
		remote   string
		expected string
	}{
		{"prefers x-forwarded-for", "203.0.113.1", "203.0.113.2", "10.0.0.1:1234", "203.0.113.1"},
		{"falls back to x-real-ip", "", "203.0.113.2", "10.0.0.1:1234", "203.0.113.2"},
		{"falls back to remote addr", "", "", "10.0.0.1:1234", "10.0.0.1:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, ClientIP(r))
		})
	}
}
