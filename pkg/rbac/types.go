package rbac

import (
	"errors"
	"time"
)

// DenyReason classifies why an access check rejected a caller. The
// reason is recorded in metrics and audit events but never returned to
// the client, which only sees a generic 403.
type DenyReason string

const (
	ReasonNotAMember       DenyReason = "not_a_member"
	ReasonInsufficientRole DenyReason = "insufficient_role"
)

var (
	// ErrWorkspaceNotFound is returned when a check references a
	// workspace that does not exist.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrMembershipNotFound is returned by membership lookups and
	// updates when the user has no row in the workspace.
	ErrMembershipNotFound = errors.New("membership not found")
)

// Decision is the outcome of an access check. When Allowed is false,
// Reason says why and the role fields carry the detail for audit.
type Decision struct {
	Allowed       bool
	Reason        DenyReason
	Role          string
	RoleLevel     int
	RequiredRole  string
	RequiredLevel int
}

// Membership ties a user to a workspace with a named role.
type Membership struct {
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	InvitedBy   string    `json:"invited_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Workspace is the ownership record consulted by access checks. Only
// the fields the checker needs are loaded.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
