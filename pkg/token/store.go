package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no refresh token row matches a lookup
var ErrNotFound = errors.New("refresh token not found")

// Store handles refresh token and blacklist persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new token store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const refreshTokenColumns = `
	id, user_id, token_hash, issued_at, expires_at,
	revoked_at, revoke_reason, replaced_by_id,
	device_fingerprint, origin_ip
`

// CreateRefreshToken persists a new refresh token row
func (s *Store) CreateRefreshToken(ctx context.Context, t *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, device_fingerprint, origin_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt,
		t.DeviceFingerprint, t.OriginIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash retrieves a refresh token row by secret hash
func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	query := `SELECT` + refreshTokenColumns + `FROM refresh_tokens WHERE token_hash = $1`

	return s.scanRefreshToken(s.db.QueryRowContext(ctx, query, hash))
}

func (s *Store) scanRefreshToken(row *sql.Row) (*RefreshToken, error) {
	var t RefreshToken
	var revokedAt sql.NullTime
	var revokeReason, replacedByID, device, originIP sql.NullString

	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt,
		&revokedAt, &revokeReason, &replacedByID,
		&device, &originIP,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	t.RevokeReason = revokeReason.String
	if replacedByID.Valid {
		id := replacedByID.String
		t.ReplacedByID = &id
	}
	t.DeviceFingerprint = device.String
	t.OriginIP = originIP.String

	return &t, nil
}

// Rotate atomically revokes the current token and inserts its
// successor. The conditional UPDATE on revoked_at IS NULL is the
// compare-and-swap: exactly one of two concurrent rotations observes
// RowsAffected == 1 and wins. The loser's successor row is rolled
// back with the transaction.
func (s *Store) Rotate(ctx context.Context, currentID string, successor *RefreshToken) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, device_fingerprint, origin_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		successor.ID, successor.UserID, successor.TokenHash,
		successor.IssuedAt, successor.ExpiresAt,
		successor.DeviceFingerprint, successor.OriginIP,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert successor token: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $1, replaced_by_id = $2
		WHERE id = $3 AND revoked_at IS NULL
	`, ReasonRotated, successor.ID, currentID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke rotated token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rotation result: %w", err)
	}
	if affected == 0 {
		// Lost the race: another rotation already revoked the row.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rotation: %w", err)
	}
	return true, nil
}

// RevokeChain revokes every token reachable forward through the
// rotation chain starting at fromID, and returns how many rows were
// newly revoked. Used on replay detection: the attacker may hold any
// successor in the chain, so all of them die together.
func (s *Store) RevokeChain(ctx context.Context, fromID, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, replaced_by_id FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT rt.id, rt.replaced_by_id
			FROM refresh_tokens rt
			JOIN chain c ON rt.id = c.replaced_by_id
		)
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE id IN (SELECT id FROM chain) AND revoked_at IS NULL
	`, fromID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke rotation chain: %w", err)
	}
	return result.RowsAffected()
}

// RevokeByHash revokes a single token by secret hash. Revoking an
// already-revoked token is a no-op, not an error.
func (s *Store) RevokeByHash(ctx context.Context, hash, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $1
		WHERE token_hash = $2 AND revoked_at IS NULL
	`, reason, hash)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active refresh token for a user and
// returns the number revoked.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, reason, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return result.RowsAffected()
}

// ListActiveSessions returns the user's active refresh tokens,
// newest first.
func (s *Store) ListActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_fingerprint, origin_ip, issued_at, expires_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
		ORDER BY issued_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var sess Session
		var device, originIP sql.NullString
		if err := rows.Scan(&sess.ID, &device, &originIP, &sess.IssuedAt, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.DeviceFingerprint = device.String
		sess.OriginIP = originIP.String
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Blacklist inserts a blacklist entry. Duplicate hashes are ignored
// so blacklisting is idempotent.
func (s *Store) Blacklist(ctx context.Context, entry *BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_hash, user_id, expires_at, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO NOTHING
	`, entry.TokenHash, entry.UserID, entry.ExpiresAt, entry.Reason)
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted checks whether a token hash has a live blacklist
// entry. One indexed lookup; runs on every authenticated request.
func (s *Store) IsBlacklisted(ctx context.Context, hash string) (bool, error) {
	var blacklisted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM token_blacklist
			WHERE token_hash = $1 AND expires_at > NOW()
		)
	`, hash).Scan(&blacklisted)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return blacklisted, nil
}

// DeleteExpired removes refresh token rows expired beyond the grace
// window and blacklist rows past expiry. Returns counts per table.
func (s *Store) DeleteExpired(ctx context.Context, grace time.Duration) (refreshDeleted, blacklistDeleted int64, err error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < $1",
		time.Now().Add(-grace),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	refreshDeleted, err = result.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	result, err = s.db.ExecContext(ctx,
		"DELETE FROM token_blacklist WHERE expires_at < NOW()",
	)
	if err != nil {
		return refreshDeleted, 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}
	blacklistDeleted, err = result.RowsAffected()
	if err != nil {
		return refreshDeleted, 0, err
	}

	return refreshDeleted, blacklistDeleted, nil
}
