package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilhq/gatekeeper/pkg/audit"
	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (l *recordingAuditLogger) Log(_ context.Context, event *audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *recordingAuditLogger) Close() error { return nil }

func (l *recordingAuditLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *recordingAuditLogger) last() *audit.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newTestRouter(checker *Checker, required string, handler http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/workspaces/{workspace_id}/clones",
		RequireRole(checker, required)(handler),
	).Methods(http.MethodPost)
	r.Handle("/clones", RequireRole(checker, required)(handler)).Methods(http.MethodPost)
	return r
}

func okHandler() (http.HandlerFunc, *string) {
	var seenWorkspace string
	return func(w http.ResponseWriter, r *http.Request) {
		seenWorkspace = contextkeys.GetWorkspaceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}, &seenWorkspace
}

func TestRequireRoleAllowed(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleEditor)

	handler, seenWorkspace := okHandler()
	router := newTestRouter(checker, roles.RoleEditor, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws-1", *seenWorkspace)
}

func TestRequireRoleSetsEffectiveRole(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleAdmin)

	var seenRole string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRole = contextkeys.GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	router := newTestRouter(checker, roles.RoleEditor, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, roles.RoleAdmin, seenRole)
}

func TestRequireRoleDeniedGenericBody(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleViewer)

	handler, _ := okHandler()
	router := newTestRouter(checker, roles.RoleAdmin, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "forbidden")
	assert.NotContains(t, body, "viewer")
	assert.NotContains(t, body, "admin")
}

func TestRequireRoleDenialAudited(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleViewer)

	recorder := &recordingAuditLogger{}
	handler, _ := okHandler()
	router := newTestRouter(checker, roles.RoleAdmin, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	ctx := contextkeys.WithUserID(req.Context(), "user-1")
	ctx = audit.WithLogger(ctx, recorder)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Eventually(t, func() bool { return recorder.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	event := recorder.last()
	assert.Equal(t, audit.EventTypeAccessDenied, event.EventType)
	assert.Equal(t, "ws-1", event.WorkspaceID)
	assert.Equal(t, string(ReasonInsufficientRole), event.Metadata["reason"])
	assert.Equal(t, roles.RoleViewer, event.Metadata["role"])
	assert.Equal(t, roles.RoleAdmin, event.Metadata["required_role"])
}

func TestRequireRoleMissingWorkspaceID(t *testing.T) {
	checker, _ := newTestChecker(t)
	handler, _ := okHandler()
	router := newTestRouter(checker, roles.RoleViewer, handler)

	req := httptest.NewRequest(http.MethodPost, "/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireRoleUnauthenticated(t *testing.T) {
	checker, _ := newTestChecker(t)
	handler, _ := okHandler()
	router := newTestRouter(checker, roles.RoleViewer, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleStoreFailureReturns500(t *testing.T) {
	checker, mock := newTestChecker(t)
	mock.ExpectQuery("SELECT is_platform_admin FROM users").
		WithArgs("user-1").
		WillReturnError(assert.AnError)

	handler, _ := okHandler()
	router := newTestRouter(checker, roles.RoleViewer, handler)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireCapability(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleEditor)

	handler, _ := okHandler()
	r := mux.NewRouter()
	r.Handle("/workspaces/{workspace_id}/clones",
		RequireCapability(checker, roles.ResourceClone, roles.ActionCreate)(handler),
	).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/ws-1/clones", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// clone:create requires editor
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireCapabilityDenied(t *testing.T) {
	checker, mock := newTestChecker(t)
	expectNotPlatformAdmin(mock, "user-1")
	expectOwner(mock, "ws-1", "owner-1")
	expectMembership(mock, "ws-1", "user-1", roles.RoleEditor)

	handler, _ := okHandler()
	r := mux.NewRouter()
	r.Handle("/workspaces/{workspace_id}",
		RequireCapability(checker, roles.ResourceWorkspace, roles.ActionDelete)(handler),
	).Methods(http.MethodDelete)

	req := httptest.NewRequest(http.MethodDelete, "/workspaces/ws-1", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// workspace:delete requires owner
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
