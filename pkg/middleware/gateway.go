package middleware

import (
	"net/http"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/ratelimit"
	"github.com/veilhq/gatekeeper/pkg/rbac"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

// Gateway composes the three request gates. Order is fixed:
// authentication first, then workspace authorization where the route
// is workspace-scoped, then rate limiting against the authenticated
// subject.
type Gateway struct {
	auth    *Authenticator
	checker *rbac.Checker
	limiter *ratelimit.Limiter
	plans   ratelimit.PlanSource
}

func NewGateway(auth *Authenticator, checker *rbac.Checker, limiter *ratelimit.Limiter, plans ratelimit.PlanSource) *Gateway {
	return &Gateway{
		auth:    auth,
		checker: checker,
		limiter: limiter,
		plans:   plans,
	}
}

// Protected gates a user-scoped route: authentication then rate
// limiting, no workspace check.
func (g *Gateway) Protected() func(http.Handler) http.Handler {
	return httputil.Chain(
		g.auth.Handler,
		ratelimit.Middleware(g.limiter, g.plans, nil),
	)
}

// Workspace gates a workspace-scoped route behind a minimum role. The
// effective role resolved by the access check feeds rate limit rule
// resolution.
func (g *Gateway) Workspace(requiredRole string) func(http.Handler) http.Handler {
	return httputil.Chain(
		g.auth.Handler,
		rbac.RequireRole(g.checker, requiredRole),
		ratelimit.Middleware(g.limiter, g.plans, contextkeys.GetUserRole),
	)
}

// WorkspaceCapability gates a workspace-scoped route behind the role
// configured for a resource and action.
func (g *Gateway) WorkspaceCapability(resource roles.Resource, action roles.Action) func(http.Handler) http.Handler {
	return httputil.Chain(
		g.auth.Handler,
		rbac.RequireCapability(g.checker, resource, action),
		ratelimit.Middleware(g.limiter, g.plans, contextkeys.GetUserRole),
	)
}
