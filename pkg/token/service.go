package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/observability"
)

const defaultStoreTimeout = 5 * time.Second

// Service implements the token lifecycle: issuance, verification,
// rotation with replay detection, and revocation.
type Service struct {
	signer       *Signer
	store        *Store
	auditLog     audit.Logger
	metrics      *observability.Metrics
	logger       *observability.Logger
	refreshTTL   time.Duration
	storeTimeout time.Duration
}

// ServiceOptions configures a Service
type ServiceOptions struct {
	// RefreshTTL is the refresh token lifetime (default 30 days)
	RefreshTTL time.Duration

	// StoreTimeout bounds every store call (default 5s). A timed-out
	// store call during verification fails closed.
	StoreTimeout time.Duration

	Audit   audit.Logger
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// NewService creates a token service
func NewService(signer *Signer, store *Store, opts ServiceOptions) *Service {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Service{
		signer:       signer,
		store:        store,
		auditLog:     opts.Audit,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		refreshTTL:   opts.RefreshTTL,
		storeTimeout: opts.StoreTimeout,
	}
}

// IssueTokenPair creates a fresh access/refresh pair for a user at
// login. The raw refresh secret is returned exactly once; only its
// hash is persisted.
func (s *Service) IssueTokenPair(ctx context.Context, userID string, device DeviceInfo) (*Pair, error) {
	pair, _, err := s.issuePair(ctx, userID, device)
	if err != nil {
		return nil, err
	}

	s.countIssued("login")
	audit.LogAsync(ctx, s.auditLog, s.authEvent(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess, userID, device, "token pair issued"))
	return pair, nil
}

// RefreshTokenPair redeems a refresh token for a new pair, rotating
// the refresh token. A redemption of an already-rotated token is a
// replay and revokes the whole forward chain.
func (s *Service) RefreshTokenPair(ctx context.Context, rawRefresh string, device DeviceInfo) (*Pair, error) {
	if err := ValidateRefreshFormat(rawRefresh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	current, err := s.getByHash(ctx, HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := time.Now()
	if now.After(current.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	if current.RevokedAt != nil {
		// The token was already redeemed (or revoked) before this
		// call started: an independent second redemption, i.e. a
		// replay. Kill everything reachable forward through the
		// rotation chain.
		return nil, s.handleReplay(ctx, current, device)
	}

	successor := &RefreshToken{
		ID:                uuid.NewString(),
		UserID:            current.UserID,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.refreshTTL),
		DeviceFingerprint: device.Fingerprint,
		OriginIP:          device.IP,
	}
	rawSuccessor, successorHash, err := GenerateRefreshSecret()
	if err != nil {
		return nil, err
	}
	successor.TokenHash = successorHash

	storeCtx, cancel := s.withTimeout(ctx)
	won, err := s.store.Rotate(storeCtx, current.ID, successor)
	cancel()
	if err != nil {
		s.countRotation("error")
		return nil, err
	}

	if !won {
		// The CAS failed: a concurrent redemption of the same token
		// committed first. Re-read to confirm someone else holds the
		// successor; this caller raced and lost, which is not a
		// replay (the winner was the same legitimate client).
		reread, rereadErr := s.getByHash(ctx, current.TokenHash)
		if rereadErr == nil && reread.RevokedAt != nil &&
			reread.ReplacedByID != nil && *reread.ReplacedByID != successor.ID {
			s.countRotation("lost_race")
			s.logger.WithFields(map[string]interface{}{
				"user_id":  current.UserID,
				"token_id": current.ID,
			}).Info("Concurrent refresh lost rotation race")
			return nil, ErrTokenRevoked
		}
		s.countRotation("error")
		return nil, ErrTokenRevoked
	}

	accessToken, accessExpiry, err := s.signer.SignAccessToken(current.UserID)
	if err != nil {
		return nil, err
	}

	s.countRotation("success")
	s.countIssued("refresh")
	audit.LogAsync(ctx, s.auditLog, s.authEvent(ctx, audit.EventTypeAuthRefresh, audit.EventStatusSuccess, current.UserID, device, "refresh token rotated"))

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     rawSuccessor,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: successor.ExpiresAt,
	}, nil
}

// handleReplay revokes the full forward chain and reports the replay
func (s *Service) handleReplay(ctx context.Context, current *RefreshToken, device DeviceInfo) error {
	storeCtx, cancel := s.withTimeout(ctx)
	revoked, err := s.store.RevokeChain(storeCtx, current.ID, ReasonReplayDetected)
	cancel()
	if err != nil {
		// The chain revocation failed but the redeemed token is
		// known-revoked; still refuse the refresh.
		s.logger.WithError(err).WithField("token_id", current.ID).Error("Failed to revoke rotation chain after replay")
	}

	if s.metrics != nil {
		s.metrics.TokenReplaysTotal.Inc()
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":       current.UserID,
		"token_id":      current.ID,
		"chain_revoked": revoked,
		"origin_ip":     device.IP,
	}).Warn("Refresh token replay detected")

	event := s.authEvent(ctx, audit.EventTypeAuthReplayDetected, audit.EventStatusDenied, current.UserID, device, "refresh token replay detected")
	event.Metadata["token_id"] = current.ID
	event.Metadata["chain_revoked"] = revoked
	audit.LogAsync(ctx, s.auditLog, event)

	return ErrTokenReplayed
}

// RevokeToken revokes a single refresh token, e.g. at logout.
// Revoking an already-revoked token is a no-op.
func (s *Service) RevokeToken(ctx context.Context, rawRefresh, reason string) error {
	if err := ValidateRefreshFormat(rawRefresh); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.RevokeByHash(storeCtx, HashToken(rawRefresh), reason); err != nil {
		return err
	}

	s.countRevoked(reason)
	eventType := audit.EventTypeAuthTokenRevoke
	if reason == ReasonLogout {
		eventType = audit.EventTypeAuthLogout
	}
	audit.LogAsync(ctx, s.auditLog, s.authEvent(ctx, eventType, audit.EventStatusSuccess, "", DeviceInfo{}, "refresh token revoked: "+reason))
	return nil
}

// RevokeAllUserTokens revokes every active refresh token for a user
// (multi-device logout) and returns the count.
func (s *Service) RevokeAllUserTokens(ctx context.Context, userID string) (int64, error) {
	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	revoked, err := s.store.RevokeAllForUser(storeCtx, userID, ReasonLogoutAll)
	if err != nil {
		return 0, err
	}

	s.countRevoked(ReasonLogoutAll)
	event := s.authEvent(ctx, audit.EventTypeAuthLogoutAll, audit.EventStatusSuccess, userID, DeviceInfo{}, "all sessions revoked")
	event.Metadata["revoked"] = revoked
	audit.LogAsync(ctx, s.auditLog, event)

	return revoked, nil
}

// VerifyAccessToken validates an access token: signature and expiry
// first (no I/O), then a single indexed blacklist lookup. Store
// failures fail closed; an unverifiable identity is never
// authenticated.
func (s *Service) VerifyAccessToken(ctx context.Context, rawAccess string) (*Claims, error) {
	claims, err := s.signer.VerifyAccessToken(rawAccess)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			s.countVerification("expired")
		} else {
			s.countVerification("invalid")
		}
		return nil, err
	}

	storeCtx, cancel := s.withTimeout(ctx)
	blacklisted, err := s.store.IsBlacklisted(storeCtx, HashToken(rawAccess))
	cancel()
	if err != nil {
		s.countVerification("error")
		return nil, fmt.Errorf("token store unavailable: %w", err)
	}
	if blacklisted {
		s.countVerification("revoked")
		return nil, ErrTokenRevoked
	}

	s.countVerification("valid")
	return claims, nil
}

// BlacklistAccessToken invalidates an access token before its natural
// expiry. The blacklist entry lives exactly as long as the token
// would have.
func (s *Service) BlacklistAccessToken(ctx context.Context, rawAccess, reason string) error {
	claims, err := s.signer.VerifyAccessToken(rawAccess)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			// Already dead; nothing to blacklist.
			return nil
		}
		return err
	}

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Blacklist(storeCtx, &BlacklistEntry{
		TokenHash: HashToken(rawAccess),
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    reason,
	})
}

// ListUserSessions returns the user's active sessions for display
func (s *Service) ListUserSessions(ctx context.Context, userID string) ([]Session, error) {
	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.ListActiveSessions(storeCtx, userID)
}

func (s *Service) issuePair(ctx context.Context, userID string, device DeviceInfo) (*Pair, *RefreshToken, error) {
	rawRefresh, refreshHash, err := GenerateRefreshSecret()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	row := &RefreshToken{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenHash:         refreshHash,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.refreshTTL),
		DeviceFingerprint: device.Fingerprint,
		OriginIP:          device.IP,
	}

	storeCtx, cancel := s.withTimeout(ctx)
	err = s.store.CreateRefreshToken(storeCtx, row)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	accessToken, accessExpiry, err := s.signer.SignAccessToken(userID)
	if err != nil {
		return nil, nil, err
	}

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: row.ExpiresAt,
	}, row, nil
}

func (s *Service) getByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.GetRefreshTokenByHash(storeCtx, hash)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) authEvent(ctx context.Context, eventType audit.EventType, status audit.EventStatus, userID string, device DeviceInfo, message string) *audit.Event {
	event := audit.NewEvent(ctx, nil, eventType, status)
	if userID != "" {
		event.UserID = userID
	}
	if device.IP != "" {
		event.IPAddress = device.IP
	}
	if device.Fingerprint != "" {
		event.Metadata["device_fingerprint"] = device.Fingerprint
	}
	event.Message = message
	return event
}

func (s *Service) countIssued(grant string) {
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues(grant).Inc()
	}
}

func (s *Service) countRotation(status string) {
	if s.metrics != nil {
		s.metrics.TokenRotationsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) countVerification(result string) {
	if s.metrics != nil {
		s.metrics.TokenVerificationsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countRevoked(reason string) {
	if s.metrics != nil {
		s.metrics.TokensRevokedTotal.WithLabelValues(reason).Inc()
	}
}
