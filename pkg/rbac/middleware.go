package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

// RequireRole gates a route behind a workspace role. The workspace ID
// comes from the route's {workspace_id} variable; requests without one
// are rejected with 400 before any lookup. Denials return a generic
// 403 and record the detail in the audit log only.
func RequireRole(checker *Checker, required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := observability.FromContext(ctx)

			workspaceID := mux.Vars(r)["workspace_id"]
			if workspaceID == "" {
				httputil.WriteBadRequest(w, "workspace_id is required")
				return
			}

			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			decision, err := checker.CheckAccess(ctx, userID, workspaceID, required)
			if err != nil {
				log.WithError(err).WithFields(map[string]interface{}{
					"workspace_id": workspaceID,
					"user_id":      userID,
				}).Error("Access check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			if !decision.Allowed {
				event := audit.NewEvent(ctx, r, audit.EventTypeAccessDenied, audit.EventStatusDenied)
				event.WorkspaceID = workspaceID
				event.Metadata = map[string]interface{}{
					"reason":        string(decision.Reason),
					"role":          decision.Role,
					"required_role": decision.RequiredRole,
				}
				audit.LogAsync(ctx, audit.FromContext(ctx), event)

				log.WithFields(map[string]interface{}{
					"workspace_id":  workspaceID,
					"user_id":       userID,
					"reason":        string(decision.Reason),
					"required_role": decision.RequiredRole,
				}).Warn("Access denied")
				httputil.WriteForbidden(w, "forbidden")
				return
			}

			ctx = contextkeys.WithWorkspaceID(ctx, workspaceID)
			ctx = contextkeys.WithUserRole(ctx, decision.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability gates a route behind the role configured for a
// resource and action. The role is resolved per request so registry
// reloads take effect without restarting.
func RequireCapability(checker *Checker, resource roles.Resource, action roles.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			required := checker.registry.RequiredRole(resource, action)
			RequireRole(checker, required)(next).ServeHTTP(w, r)
		})
	}
}
