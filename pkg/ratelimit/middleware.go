package ratelimit

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/observability"
)

var (
	uuidSegment    = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numericSegment = regexp.MustCompile(`/\d+`)
)

// NormalizeEndpoint reduces a request path to a stable pattern so
// counters aggregate per route rather than per resource. Routes
// registered with mux keep their path template; everything else gets
// ID-looking segments collapsed.
func NormalizeEndpoint(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	path := uuidSegment.ReplaceAllString(r.URL.Path, "/{id}")
	return numericSegment.ReplaceAllString(path, "/{id}")
}

// exceededResponse is the 429 body: it carries the window that
// tripped and its counter state so clients can back off precisely.
type exceededResponse struct {
	Error   string `json:"error"`
	Window  string `json:"window"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
	ResetAt string `json:"reset_at"`
}

// Middleware enforces rate limits for authenticated requests. The
// plan comes from the plan source and the role from roleFor, both
// resolved per request. Bypass-listed endpoints pass untouched.
func Middleware(limiter *Limiter, plans PlanSource, roleFor func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := observability.FromContext(ctx)

			if !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			endpoint := NormalizeEndpoint(r)
			if limiter.Bypassed(endpoint) {
				if limiter.metrics != nil {
					limiter.metrics.RateLimitBypassTotal.Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			plan, err := plans.PlanFor(ctx, userID)
			if err != nil {
				log.WithError(err).Warn("Plan lookup failed, using free plan limits")
				plan = "free"
			}

			var role string
			if roleFor != nil {
				role = roleFor(ctx)
			}

			result, err := limiter.CheckAndIncrement(ctx, userID, contextkeys.GetWorkspaceID(ctx), endpoint, plan, role)
			if err != nil {
				log.WithError(err).Error("Rate limit check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				event := audit.NewEvent(ctx, r, audit.EventTypeRateLimitExceeded, audit.EventStatusDenied)
				event.Metadata = map[string]interface{}{
					"window":   string(result.Window),
					"count":    result.Count,
					"limit":    result.Limit,
					"endpoint": endpoint,
				}
				audit.LogAsync(ctx, audit.FromContext(ctx), event)

				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:   "rate limit exceeded",
					Window:  string(result.Window),
					Current: result.Count,
					Limit:   result.Limit,
					ResetAt: result.ResetAt.UTC().Format(time.RFC3339),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result *Result) {
	if result.Limit == 0 {
		return
	}
	remaining := result.Limit - result.Count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
