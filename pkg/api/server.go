package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/middleware"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/ratelimit"
	"github.com/veilhq/gatekeeper/pkg/rbac"
	"github.com/veilhq/gatekeeper/pkg/token"
)

// Dependencies carries everything the server needs wired in.
type Dependencies struct {
	DB        *sql.DB
	Tokens    *token.Service
	RBACStore *rbac.Store
	Checker   *rbac.Checker
	Gateway   *middleware.Gateway
	Limiter   *ratelimit.Limiter
	Plans     ratelimit.PlanSource
	Audit     audit.Logger
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracing   bool
}

// Server is the gatekeeper HTTP surface: the auth endpoints, the
// workspace member administration, and the gate chain in front of
// everything workspace-scoped.
type Server struct {
	router *mux.Router
	logger *observability.Logger
}

func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(s.contextMiddleware(deps))
	s.router.Use(httputil.LoggingMiddleware)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.router.Use(httputil.RecoveryMiddleware)

	authHandlers := NewAuthHandlers(deps.DB, deps.Tokens, deps.Logger)
	authHandlers.RegisterPublicRoutes(s.router)
	authHandlers.RegisterProtectedRoutes(s.router, deps.Gateway.Protected())

	memberHandlers := NewMemberHandlers(deps.RBACStore, deps.Checker)
	memberHandlers.RegisterRoutes(s.router, deps.Gateway)

	if deps.Limiter != nil {
		rateLimitHandlers := NewRateLimitHandlers(deps.Limiter, deps.Plans, deps.RBACStore, deps.Logger)
		rateLimitHandlers.RegisterRoutes(s.router, deps.Gateway.Protected())
	}

	if deps.Tracing {
		s.router.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "gatekeeper")
		})
	}

	return s
}

// contextMiddleware seeds each request context with the logger and
// audit sink the handlers and gates pull back out.
func (s *Server) contextMiddleware(deps Dependencies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := s.logger.WithField("request_id", contextkeys.GetRequestID(ctx))
			ctx = contextkeys.WithLogger(ctx, log)
			ctx = audit.WithLogger(ctx, deps.Audit)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount extra
// routes behind the same middleware stack.
func (s *Server) Router() *mux.Router {
	return s.router
}
