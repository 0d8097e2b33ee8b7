package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/httputil"
	"github.com/veilhq/gatekeeper/pkg/middleware"
	"github.com/veilhq/gatekeeper/pkg/rbac"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

// MemberHandlers serves workspace membership administration.
type MemberHandlers struct {
	store   *rbac.Store
	checker *rbac.Checker
}

func NewMemberHandlers(store *rbac.Store, checker *rbac.Checker) *MemberHandlers {
	return &MemberHandlers{store: store, checker: checker}
}

// RegisterRoutes registers the member routes behind the gateway's
// workspace gates. Reads need viewer standing, writes the role
// configured for member actions.
func (h *MemberHandlers) RegisterRoutes(router *mux.Router, gateway *middleware.Gateway) {
	router.Handle("/workspaces/{workspace_id}/members",
		gateway.WorkspaceCapability(roles.ResourceMember, roles.ActionRead)(http.HandlerFunc(h.list)),
	).Methods(http.MethodGet)
	router.Handle("/workspaces/{workspace_id}/members",
		gateway.WorkspaceCapability(roles.ResourceMember, roles.ActionInvite)(http.HandlerFunc(h.add)),
	).Methods(http.MethodPost)
	router.Handle("/workspaces/{workspace_id}/members/{user_id}",
		gateway.WorkspaceCapability(roles.ResourceMember, roles.ActionUpdate)(http.HandlerFunc(h.update)),
	).Methods(http.MethodPut)
	router.Handle("/workspaces/{workspace_id}/members/{user_id}",
		gateway.WorkspaceCapability(roles.ResourceMember, roles.ActionRemove)(http.HandlerFunc(h.remove)),
	).Methods(http.MethodDelete)
}

func (h *MemberHandlers) list(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.ListMembers(r.Context(), contextkeys.GetWorkspaceID(r.Context()))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if members == nil {
		members = []*rbac.Membership{}
	}
	httputil.WriteSuccess(w, members)
}

func (h *MemberHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if err := h.checker.ValidateRole(req.Role); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	m := &rbac.Membership{
		WorkspaceID: contextkeys.GetWorkspaceID(ctx),
		UserID:      req.UserID,
		Role:        req.Role,
		InvitedBy:   contextkeys.GetUserID(ctx),
	}
	if err := h.store.AddMember(ctx, m); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, m)
}

func (h *MemberHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["user_id"]

	var req updateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.checker.ValidateRole(req.Role); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	err := h.store.UpdateMemberRole(ctx, contextkeys.GetWorkspaceID(ctx), userID, req.Role)
	if errors.Is(err, rbac.ErrMembershipNotFound) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "membership not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *MemberHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["user_id"]

	err := h.store.RemoveMember(ctx, contextkeys.GetWorkspaceID(ctx), userID)
	if errors.Is(err, rbac.ErrMembershipNotFound) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "membership not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
