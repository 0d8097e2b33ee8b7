package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/token"
)

// SessionCookieName is the cookie consulted when no Authorization
// header is present, for browser clients.
const SessionCookieName = "gatekeeper_session"

// Principal is the authenticated caller attached to the request
// context after token verification.
type Principal struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// GetPrincipal retrieves the authenticated caller from the context,
// or nil for unauthenticated requests.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p
}

// Authenticator verifies access tokens and attaches the caller to the
// request context. Rejections are generic to the client; the precise
// reason (expired, invalid, revoked) only reaches the logs.
type Authenticator struct {
	tokens *token.Service
	logger *observability.Logger
}

func NewAuthenticator(tokens *token.Service, logger *observability.Logger) *Authenticator {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authenticator{tokens: tokens, logger: logger}
}

// Handler rejects requests without a verifiable access token. A store
// failure during verification denies the request: an identity that
// cannot be checked is never treated as authenticated.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, ok := extractToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		claims, err := a.tokens.VerifyAccessToken(ctx, raw)
		if err != nil {
			a.logger.WithFields(map[string]interface{}{
				"reason":     verifyFailureReason(err),
				"request_id": contextkeys.GetRequestID(ctx),
				"path":       r.URL.Path,
			}).Info("Token verification failed")

			if isVerifyRejection(err) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
			} else {
				httputil.WriteInternalError(w, errors.New("verification unavailable"))
			}
			return
		}

		principal := &Principal{
			UserID:    claims.UserID,
			TokenID:   claims.ID,
			ExpiresAt: claims.ExpiresAt.Time,
		}
		ctx = contextkeys.WithPrincipal(ctx, principal)
		ctx = contextkeys.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// isVerifyRejection separates "this token is bad" from "the store
// could not answer". Both deny, but the latter is a server fault.
func isVerifyRejection(err error) bool {
	return errors.Is(err, token.ErrInvalidToken) ||
		errors.Is(err, token.ErrTokenExpired) ||
		errors.Is(err, token.ErrTokenRevoked)
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, token.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, token.ErrInvalidToken):
		return "invalid"
	default:
		return "store_error"
	}
}
