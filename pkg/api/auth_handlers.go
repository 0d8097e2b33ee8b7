package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/middleware"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/token"
)

// AuthHandlers serves the token lifecycle endpoints.
type AuthHandlers struct {
	db     *sql.DB
	tokens *token.Service
	logger *observability.Logger
}

func NewAuthHandlers(db *sql.DB, tokens *token.Service, logger *observability.Logger) *AuthHandlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuthHandlers{db: db, tokens: tokens, logger: logger}
}

// RegisterPublicRoutes registers the routes reachable without a
// verified access token.
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
}

// RegisterProtectedRoutes registers the routes that require an
// authenticated caller; gate is the middleware chain applied to each.
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router, gate func(http.Handler) http.Handler) {
	router.Handle("/auth/logout-all", gate(http.HandlerFunc(h.logoutAll))).Methods(http.MethodPost)
	router.Handle("/auth/sessions", gate(http.HandlerFunc(h.listSessions))).Methods(http.MethodGet)
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		httputil.WriteBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	userID := uuid.NewString()
	_, err = h.db.ExecContext(r.Context(),
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		userID, req.Email, string(hash),
	)
	if err != nil {
		// unique violation on email surfaces as a generic conflict
		httputil.WriteErrorMessage(w, http.StatusConflict, "email already registered")
		return
	}

	httputil.WriteCreated(w, userResponse{ID: userID, Email: req.Email, Plan: "free"})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	var userID, passwordHash string
	err := h.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`,
		req.Email,
	).Scan(&userID, &passwordHash)
	if err == sql.ErrNoRows {
		h.loginFailed(ctx, r, req.Email)
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		h.loginFailed(ctx, r, req.Email)
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	pair, err := h.tokens.IssueTokenPair(ctx, userID, deviceInfo(r))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.setSessionCookie(w, pair)
	httputil.WriteSuccess(w, pairResponse(pair))
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pair, err := h.tokens.RefreshTokenPair(ctx, req.RefreshToken, deviceInfo(r))
	if err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	h.setSessionCookie(w, pair)
	httputil.WriteSuccess(w, pairResponse(pair))
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req logoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	if err := h.tokens.RevokeToken(ctx, req.RefreshToken, token.ReasonLogout); err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	// drop the access token too if the caller sent one
	if raw, ok := bearerToken(r); ok {
		if err := h.tokens.BlacklistAccessToken(ctx, raw, token.ReasonLogout); err != nil {
			h.logger.WithError(err).Warn("Failed to blacklist access token at logout")
		}
	}

	h.clearSessionCookie(w)
	httputil.WriteNoContent(w)
}

func (h *AuthHandlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := contextkeys.GetUserID(ctx)

	revoked, err := h.tokens.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if raw, ok := bearerToken(r); ok {
		if err := h.tokens.BlacklistAccessToken(ctx, raw, token.ReasonLogoutAll); err != nil {
			h.logger.WithError(err).Warn("Failed to blacklist access token at logout")
		}
	}

	h.clearSessionCookie(w)
	httputil.WriteSuccess(w, map[string]interface{}{"revoked": revoked})
}

func (h *AuthHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.tokens.ListUserSessions(r.Context(), contextkeys.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, sessions)
}

// writeTokenError maps token lifecycle failures to responses. Clients
// always get a generic 401; the distinction lives in the logs.
func (h *AuthHandlers) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, token.ErrTokenReplayed):
		h.logger.WithFields(map[string]interface{}{
			"path": r.URL.Path,
			"ip":   audit.ClientIP(r),
		}).Warn("Refresh token replay detected")
		httputil.WriteUnauthorized(w, "invalid or expired token")
	case errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenRevoked),
		errors.Is(err, token.ErrInvalidToken):
		httputil.WriteUnauthorized(w, "invalid or expired token")
	default:
		httputil.WriteInternalError(w, err)
	}
}

func (h *AuthHandlers) loginFailed(ctx context.Context, r *http.Request, email string) {
	event := audit.NewEvent(ctx, r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
	event.Message = "invalid credentials"
	event.Metadata = map[string]interface{}{"email": email}
	audit.LogAsync(ctx, audit.FromContext(ctx), event)
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, pair *token.Pair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func pairResponse(pair *token.Pair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func deviceInfo(r *http.Request) token.DeviceInfo {
	return token.DeviceInfo{
		Fingerprint: r.Header.Get("X-Device-Fingerprint"),
		IP:          audit.ClientIP(r),
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
