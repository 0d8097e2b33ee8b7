package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/ratelimit"
	"github.com/veilhq/gatekeeper/pkg/rbac"
)

// RateLimitHandlers exposes a caller's rate limit standing and a
// platform-admin reset for a user's counters.
type RateLimitHandlers struct {
	limiter *ratelimit.Limiter
	plans   ratelimit.PlanSource
	store   *rbac.Store
	logger  *observability.Logger
}

func NewRateLimitHandlers(limiter *ratelimit.Limiter, plans ratelimit.PlanSource, store *rbac.Store, logger *observability.Logger) *RateLimitHandlers {
	return &RateLimitHandlers{limiter: limiter, plans: plans, store: store, logger: logger}
}

// RegisterRoutes registers the rate limit routes; gate is the
// authenticated middleware chain applied to each.
func (h *RateLimitHandlers) RegisterRoutes(router *mux.Router, gate func(http.Handler) http.Handler) {
	router.Handle("/auth/rate-limit", gate(http.HandlerFunc(h.status))).Methods(http.MethodGet)
	router.Handle("/users/{user_id}/rate-limits", gate(http.HandlerFunc(h.reset))).Methods(http.MethodDelete)
}

// status reports the caller's counters for an endpoint pattern
// (?endpoint=..., defaulting to the wildcard rule).
func (h *RateLimitHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := contextkeys.GetUserID(ctx)

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		endpoint = "*"
	}

	plan, err := h.plans.PlanFor(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Warn("Plan lookup failed, reporting free plan limits")
		plan = "free"
	}

	status, err := h.limiter.Status(ctx, userID, "", endpoint, plan, "")
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("Rate limit status read failed")
		httputil.WriteServiceUnavailable(w, "rate limit status unavailable")
		return
	}
	httputil.WriteSuccess(w, status)
}

// reset clears every counter for a user. Platform admins only.
func (h *RateLimitHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	admin, err := h.store.IsPlatformAdmin(ctx, contextkeys.GetUserID(ctx))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !admin {
		httputil.WriteForbidden(w, "forbidden")
		return
	}

	deleted, err := h.limiter.ResetSubject(ctx, mux.Vars(r)["user_id"], "")
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("Rate limit reset failed")
		httputil.WriteServiceUnavailable(w, "rate limit reset unavailable")
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"deleted": deleted})
}
