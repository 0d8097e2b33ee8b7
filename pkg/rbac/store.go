package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Store reads workspace ownership and membership rows from Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetMembershipRole returns the role name of the user's membership in
// the workspace, or ErrMembershipNotFound when no row exists.
func (s *Store) GetMembershipRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role_name FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrMembershipNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get membership role: %w", err)
	}
	return role, nil
}

// GetWorkspaceOwner returns the owning user ID of a workspace.
func (s *Store) GetWorkspaceOwner(ctx context.Context, workspaceID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_user_id FROM workspaces WHERE id = $1`,
		workspaceID,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ErrWorkspaceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get workspace owner: %w", err)
	}
	return owner, nil
}

// IsPlatformAdmin reports whether the user carries the platform admin
// flag. Unknown users are not admins.
func (s *Store) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_platform_admin FROM users WHERE id = $1`,
		userID,
	).Scan(&admin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check platform admin: %w", err)
	}
	return admin, nil
}

// AddMember inserts a membership row. Adding a user who is already a
// member updates their role instead.
func (s *Store) AddMember(ctx context.Context, m *Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_name, invited_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace_id, user_id)
		 DO UPDATE SET role_name = EXCLUDED.role_name, updated_at = NOW()`,
		m.WorkspaceID, m.UserID, m.Role, nullString(m.InvitedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes an existing member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, workspaceID, userID, role string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workspace_members SET role_name = $1, updated_at = NOW()
		 WHERE workspace_id = $2 AND user_id = $3`,
		role, workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// RemoveMember deletes a membership row.
func (s *Store) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// ListMembers returns all memberships of a workspace ordered by role
// then user ID.
func (s *Store) ListMembers(ctx context.Context, workspaceID string) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, user_id, role_name, invited_by, created_at, updated_at
		 FROM workspace_members WHERE workspace_id = $1
		 ORDER BY role_name, user_id`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		var m Membership
		var invitedBy sql.NullString
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &invitedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.InvitedBy = invitedBy.String
		members = append(members, &m)
	}
	return members, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
