package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthRefresh        EventType = "auth.refresh"
	EventTypeAuthLogout         EventType = "auth.logout"
	EventTypeAuthLogoutAll      EventType = "auth.logout_all"
	EventTypeAuthTokenRevoke    EventType = "auth.token_revoke"
	EventTypeAuthReplayDetected EventType = "auth.replay_detected"

	// Authorization events
	EventTypeAccessDenied EventType = "rbac.denied"

	// Rate limiting events
	EventTypeRateLimitExceeded EventType = "ratelimit.exceeded"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for querying the audit log
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID      string
	WorkspaceID string
	EventTypes  []EventType
	Status      *EventStatus
	IPAddress   string

	Limit  int
	Offset int
}
