package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tangled.org/agora.social/agora/internal/database"
	"tangled.org/agora.social/agora/internal/feed"
	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{moderation.ErrForbidden, http.StatusForbidden},
		{moderation.ErrNotFound, http.StatusNotFound},
		{moderation.ErrInvalidRole, http.StatusBadRequest},
		{moderation.ErrInvalidTarget, http.StatusBadRequest},
		{&moderation.ValidationError{Field: "reason", Message: "required"}, http.StatusBadRequest},
		{moderation.ErrSelfBlock, http.StatusBadRequest},
		{moderation.ErrAlreadyDefault, http.StatusConflict},
		{moderation.ErrConflict, http.StatusConflict},
		{moderation.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("op: %w", moderation.ErrStorage), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteErrorHidesStorageDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	writeError(rec, req, fmt.Errorf("get role: %w: %w", moderation.ErrStorage, errors.New("disk I/O error")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	DecodeResponse(t, rec, &body)
	assert.Equal(t, "storage_error", body.Error)
	assert.Equal(t, "internal error", body.Message)
}

func TestStorageFailureReturns500(t *testing.T) {
	store := &database.MockStore{
		GetRoleFunc: func(context.Context, string) (moderation.Role, bool, error) {
			return "", false, errors.New("database is locked")
		},
	}
	roles := moderation.NewRoleService(store)
	mod := moderation.NewModerationService(store, roles)
	blocks := moderation.NewBlockService(store)
	h := NewHandler(roles, mod, blocks, moderation.NewAdminService(store, roles, mod), feed.NewService(store, blocks))

	rec := httptest.NewRecorder()
	h.HandleListReports(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/reports", nil, "mod"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is locked")

	// CheckRole fails closed, so /api/me still answers with the default role
	rec = httptest.NewRecorder()
	h.HandleMe(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/me", nil, "mod"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"user"`)
}

func TestRequiresPrincipal(t *testing.T) {
	env := NewTestEnv(t)
	h := env.Handler

	handlers := map[string]http.HandlerFunc{
		"me":      h.HandleMe,
		"feed":    h.HandleFeed,
		"reports": h.HandleListReports,
		"blocks":  h.HandleListBlocks,
		"admin":   h.HandleAdmin,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, NewAuthenticatedRequest(t, http.MethodGet, "/", nil, ""))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body errorResponse
			DecodeResponse(t, rec, &body)
			assert.Equal(t, "unauthenticated", body.Error)
		})
	}
}

func TestHandleMe(t *testing.T) {
	env := NewTestEnv(t)

	t.Run("moderator", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.Handler.HandleMe(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/me", nil, "mod"))
		require.Equal(t, http.StatusOK, rec.Code)

		var body meResponse
		DecodeResponse(t, rec, &body)
		assert.Equal(t, "mod", body.ID)
		assert.Equal(t, moderation.RoleModerator, body.Role)
		assert.Contains(t, body.Permissions, moderation.PermissionDeleteContent)
		assert.NotContains(t, body.Permissions, moderation.PermissionManageRoles)
	})

	t.Run("unknown account gets default role", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.Handler.HandleMe(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/me", nil, "nobody"))
		require.Equal(t, http.StatusOK, rec.Code)

		var body meResponse
		DecodeResponse(t, rec, &body)
		assert.Equal(t, moderation.RoleUser, body.Role)
		assert.Empty(t, body.Permissions)
		assert.Contains(t, rec.Body.String(), `"permissions":[]`)
	})
}

func TestHandleRoleHistory(t *testing.T) {
	env := NewTestEnv(t)

	req := NewAuthenticatedRequest(t, http.MethodGet, "/api/audit/roles/mod", nil, "alice")
	req.SetPathValue("id", "mod")
	rec := httptest.NewRecorder()
	env.Handler.HandleRoleHistory(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = NewAuthenticatedRequest(t, http.MethodGet, "/api/audit/roles/mod", nil, "admin")
	req.SetPathValue("id", "mod")
	rec = httptest.NewRecorder()
	env.Handler.HandleRoleHistory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []moderation.RoleChangeRecord `json:"records"`
	}
	DecodeResponse(t, rec, &body)
	require.Len(t, body.Records, 1)
	assert.Equal(t, moderation.RoleModerator, body.Records[0].NewRole)
}

func TestHandleFeed(t *testing.T) {
	env := NewTestEnv(t)
	env.Fixtures.Post("p1", "alice", false)
	env.Fixtures.Post("p2", "bob", true)

	rec := httptest.NewRecorder()
	env.Handler.HandleFeed(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/feed", nil, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []struct {
			ID       string `json:"id"`
			AuthorID string `json:"author_id"`
			IsOwn    bool   `json:"is_own"`
		} `json:"items"`
	}
	DecodeResponse(t, rec, &page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "p2", page.Items[0].ID)
	assert.Empty(t, page.Items[0].AuthorID)
	assert.Equal(t, "p1", page.Items[1].ID)
	assert.True(t, page.Items[1].IsOwn)

	rec = httptest.NewRecorder()
	env.Handler.HandleFeed(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/feed?limit=abc", nil, "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeletePost(t *testing.T) {
	env := NewTestEnv(t)
	env.Fixtures.Post("p1", "alice", false)
	env.Fixtures.Comment("c1", "p1", "", "bob")

	del := func(actor string) *httptest.ResponseRecorder {
		req := NewAuthenticatedRequest(t, http.MethodDelete, "/api/posts/p1", nil, actor)
		req.SetPathValue("id", "p1")
		rec := httptest.NewRecorder()
		env.Handler.HandleDeletePost(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, del("bob").Code)

	rec := del("mod")
	require.Equal(t, http.StatusOK, rec.Code)
	var res moderation.DeletionResult
	DecodeResponse(t, rec, &res)
	assert.Equal(t, 1, res.Comments)

	assert.Equal(t, http.StatusNotFound, del("mod").Code)
}

func TestHandleFileReport(t *testing.T) {
	env := NewTestEnv(t)
	env.Fixtures.Post("p1", "bob", false)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"post report", ReportRequest{Target: moderation.ReportTarget{PostID: "p1"}, Reason: "Spam"}, http.StatusCreated},
		{"two targets", ReportRequest{Target: moderation.ReportTarget{PostID: "p1", AccountID: "bob"}, Reason: "Spam"}, http.StatusBadRequest},
		{"other without description", ReportRequest{Target: moderation.ReportTarget{AccountID: "bob"}, Reason: moderation.OtherReason}, http.StatusBadRequest},
		{"missing post", ReportRequest{Target: moderation.ReportTarget{PostID: "nope"}, Reason: "Spam"}, http.StatusNotFound},
		{"malformed body", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.Handler.HandleFileReport(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/reports", tt.body, "alice"))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestReportLifecycle(t *testing.T) {
	env := NewTestEnv(t)

	rec := httptest.NewRecorder()
	env.Handler.HandleFileReport(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/reports",
		ReportRequest{Target: moderation.ReportTarget{AccountID: "bob"}, Reason: "Assédio"}, "alice"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(ReportQuotaHeader), "no limiter, no quota header")
	var filed ReportResponse
	DecodeResponse(t, rec, &filed)
	require.NotEmpty(t, filed.ID)

	rec = httptest.NewRecorder()
	env.Handler.HandleListReports(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/reports?status=open", nil, "alice"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	env.Handler.HandleListReports(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/reports?status=open", nil, "mod"))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Reports []moderation.Report `json:"reports"`
	}
	DecodeResponse(t, rec, &listed)
	require.Len(t, listed.Reports, 1)
	assert.Equal(t, filed.ID, listed.Reports[0].ID)

	resolve := func() int {
		req := NewAuthenticatedRequest(t, http.MethodPost, "/api/reports/"+filed.ID+"/resolve", nil, "mod")
		req.SetPathValue("id", filed.ID)
		rec := httptest.NewRecorder()
		env.Handler.HandleResolveReport(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, resolve())
	assert.Equal(t, http.StatusConflict, resolve())
}

func TestFileReportQuotaHeader(t *testing.T) {
	env := NewTestEnv(t)
	env.Moderation.SetReportLimiter(moderation.NewStoreLimiter(env.Store, 2, time.Hour))

	file := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		env.Handler.HandleFileReport(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/reports",
			ReportRequest{Target: moderation.ReportTarget{AccountID: "bob"}, Reason: "Spam"}, "alice"))
		return rec
	}

	rec := file()
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(ReportQuotaHeader))

	rec = file()
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(ReportQuotaHeader))

	rec = file()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

type chanNotifier chan moderation.Report

func (c chanNotifier) NotifyReport(r moderation.Report) error {
	c <- r
	return nil
}

func TestFileReportNotifies(t *testing.T) {
	env := NewTestEnv(t)
	notified := make(chanNotifier, 1)
	env.Handler.SetReportNotifier(notified)

	rec := httptest.NewRecorder()
	env.Handler.HandleFileReport(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/reports",
		ReportRequest{Target: moderation.ReportTarget{AccountID: "bob"}, Reason: "Spam"}, "alice"))
	require.Equal(t, http.StatusCreated, rec.Code)

	select {
	case r := <-notified:
		assert.Equal(t, "alice", r.ReporterID)
		assert.Equal(t, "bob", r.Target.AccountID)
		assert.NotEmpty(t, r.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("report notification not sent")
	}

	rec = httptest.NewRecorder()
	env.Handler.HandleFileReport(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/reports",
		ReportRequest{Target: moderation.ReportTarget{AccountID: "alice"}, Reason: "Spam"}, "alice"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, notified)
}

func TestBlockHandlers(t *testing.T) {
	env := NewTestEnv(t)

	call := func(fn http.HandlerFunc, method, actor, target string) *httptest.ResponseRecorder {
		req := NewAuthenticatedRequest(t, method, "/api/blocks/"+target, nil, actor)
		req.SetPathValue("id", target)
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, call(env.Handler.HandleBlock, http.MethodPut, "alice", "alice").Code)
	assert.Equal(t, http.StatusNotFound, call(env.Handler.HandleBlock, http.MethodPut, "alice", "ghost").Code)
	assert.Equal(t, http.StatusNoContent, call(env.Handler.HandleBlock, http.MethodPut, "alice", "bob").Code)
	assert.Equal(t, http.StatusNoContent, call(env.Handler.HandleBlock, http.MethodPut, "alice", "bob").Code)

	rec := httptest.NewRecorder()
	env.Handler.HandleListBlocks(rec, NewAuthenticatedRequest(t, http.MethodGet, "/api/blocks", nil, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Blocks []moderation.Block `json:"blocks"`
	}
	DecodeResponse(t, rec, &listed)
	require.Len(t, listed.Blocks, 1)
	assert.Equal(t, "bob", listed.Blocks[0].BlockedID)

	assert.Equal(t, http.StatusNoContent, call(env.Handler.HandleUnblock, http.MethodDelete, "alice", "bob").Code)
}

func TestHandleAdmin(t *testing.T) {
	env := NewTestEnv(t)

	post := func(actor string, body any) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		env.Handler.HandleAdmin(rec, NewAuthenticatedRequest(t, http.MethodPost, "/api/admin", body, actor))
		return rec
	}

	t.Run("non-admin forbidden", func(t *testing.T) {
		rec := post("mod", moderation.AdminRequest{Action: moderation.ActionGetUsers})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("get users", func(t *testing.T) {
		rec := post("admin", moderation.AdminRequest{Action: moderation.ActionGetUsers, Limit: 2})
		require.Equal(t, http.StatusOK, rec.Code)
		var page moderation.UserPage
		DecodeResponse(t, rec, &page)
		assert.Equal(t, 4, page.Total)
		assert.Len(t, page.Users, 2)
	})

	t.Run("assign role", func(t *testing.T) {
		rec := post("admin", moderation.AdminRequest{
			Action: moderation.ActionAssignRole, UserID: "alice", Role: "moderator", Reason: "trusted",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var record moderation.RoleChangeRecord
		DecodeResponse(t, rec, &record)
		assert.Equal(t, "alice", record.AccountID)
		assert.Equal(t, moderation.RoleModerator, record.NewRole)
		assert.Equal(t, "admin", record.ChangedBy)
	})

	t.Run("invalid role", func(t *testing.T) {
		rec := post("admin", moderation.AdminRequest{Action: moderation.ActionAssignRole, UserID: "bob", Role: "owner"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorResponse
		DecodeResponse(t, rec, &body)
		assert.Equal(t, "invalid_role", body.Error)
	})

	t.Run("remove default role", func(t *testing.T) {
		rec := post("admin", moderation.AdminRequest{Action: moderation.ActionRemoveRole, UserID: "bob"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := post("admin", moderation.AdminRequest{Action: "drop_tables"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	env := NewTestEnv(t)

	rec := httptest.NewRecorder()
	env.Handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.Handler.SetHealthCheck(func(ctx context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	env.Handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
