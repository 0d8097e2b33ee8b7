package token

import (
	"errors"
	"time"
)

// Sentinel errors for the token lifecycle. Handlers map all four to a
// generic 401; the distinction matters for logs and for clients
// deciding whether a refresh attempt is worthwhile.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrTokenReplayed = errors.New("token replayed")
)

// Revocation reasons recorded on refresh token rows
const (
	ReasonRotated        = "rotated"
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonReplayDetected = "replay_detected"
)

// RefreshToken is a persisted refresh token row. Only the SHA-256
// hash of the opaque secret is stored; the raw secret is returned to
// the caller exactly once at issuance.
type RefreshToken struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	TokenHash         string     `json:"-"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	RevokeReason      string     `json:"revoke_reason,omitempty"`
	ReplacedByID      *string    `json:"replaced_by_id,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	OriginIP          string     `json:"origin_ip,omitempty"`
}

// Active reports whether the token is redeemable at the given time
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// BlacklistEntry invalidates an access token before its natural
// expiry. Entries are pruned once expires_at passes.
type BlacklistEntry struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
}

// Pair is a freshly issued access/refresh token pair. The refresh
// secret appears here in the clear exactly once.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session describes an active refresh token for session listing
type Session struct {
	ID                string    `json:"id"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	OriginIP          string    `json:"origin_ip,omitempty"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// DeviceInfo carries per-login client details persisted on the
// refresh token row for session display and forensics.
type DeviceInfo struct {
	Fingerprint string
	IP          string
}
