package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilhq/gatekeeper/pkg/contextkeys"
	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/rbac"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

func newMemberFixture(t *testing.T) (*MemberHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry, err := roles.NewRegistry("", nil)
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := rbac.NewStore(db)
	checker := rbac.NewChecker(store, registry, metrics, logger)
	return NewMemberHandlers(store, checker), mock
}

func workspaceRequest(method, path string, body interface{}) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := contextkeys.WithWorkspaceID(req.Context(), "ws-1")
	ctx = contextkeys.WithUserID(ctx, "admin-1")
	return req.WithContext(ctx)
}

func TestListMembersEmpty(t *testing.T) {
	h, mock := newMemberFixture(t)
	mock.ExpectQuery("SELECT workspace_id, user_id, role_name").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "user_id", "role_name", "invited_by", "created_at", "updated_at"}))

	rec := httptest.NewRecorder()
	h.list(rec, workspaceRequest(http.MethodGet, "/workspaces/ws-1/members", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAddMember(t *testing.T) {
	h, mock := newMemberFixture(t)
	mock.ExpectExec("INSERT INTO workspace_members").
		WithArgs("ws-1", "user-2", roles.RoleEditor, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	h.add(rec, workspaceRequest(http.MethodPost, "/workspaces/ws-1/members", addMemberRequest{
		UserID: "user-2",
		Role:   roles.RoleEditor,
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	var m rbac.Membership
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "admin-1", m.InvitedBy)
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	h, _ := newMemberFixture(t)

	rec := httptest.NewRecorder()
	h.add(rec, workspaceRequest(http.MethodPost, "/workspaces/ws-1/members", addMemberRequest{
		UserID: "user-2",
		Role:   "superuser",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMemberRole(t *testing.T) {
	h, mock := newMemberFixture(t)
	mock.ExpectExec("UPDATE workspace_members SET role_name").
		WithArgs(roles.RoleAdmin, "ws-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := mux.NewRouter()
	router.HandleFunc("/workspaces/{workspace_id}/members/{user_id}", h.update).Methods(http.MethodPut)

	req := workspaceRequest(http.MethodPut, "/workspaces/ws-1/members/user-2", updateMemberRequest{Role: roles.RoleAdmin})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateMemberNotFound(t *testing.T) {
	h, mock := newMemberFixture(t)
	mock.ExpectExec("UPDATE workspace_members SET role_name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := mux.NewRouter()
	router.HandleFunc("/workspaces/{workspace_id}/members/{user_id}", h.update).Methods(http.MethodPut)

	req := workspaceRequest(http.MethodPut, "/workspaces/ws-1/members/ghost", updateMemberRequest{Role: roles.RoleAdmin})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveMember(t *testing.T) {
	h, mock := newMemberFixture(t)
	mock.ExpectExec("DELETE FROM workspace_members").
		WithArgs("ws-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := mux.NewRouter()
	router.HandleFunc("/workspaces/{workspace_id}/members/{user_id}", h.remove).Methods(http.MethodDelete)

	req := workspaceRequest(http.MethodDelete, "/workspaces/ws-1/members/user-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListMembersRows(t *testing.T) {
	h, mock := newMemberFixture(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"workspace_id", "user_id", "role_name", "invited_by", "created_at", "updated_at"}).
		AddRow("ws-1", "user-1", "admin", "owner-1", now, now)
	mock.ExpectQuery("SELECT workspace_id, user_id, role_name").
		WithArgs("ws-1").
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	h.list(rec, workspaceRequest(http.MethodGet, "/workspaces/ws-1/members", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-1")
}
