package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tangled.org/agora.social/agora/internal/database/sqlitestore"
	"tangled.org/agora.social/agora/internal/feed"
	"tangled.org/agora.social/agora/internal/middleware"
	"tangled.org/agora.social/agora/internal/moderation"
)

// TestEnv is a Handler wired to a throwaway SQLite store
type TestEnv struct {
	Handler    *Handler
	Store      *sqlitestore.Store
	Fixtures   *sqlitestore.Fixtures
	Moderation *moderation.ModerationService
}

// NewTestEnv builds a TestEnv with accounts admin, mod, alice and bob.
// admin holds the admin role and mod the moderator role.
func NewTestEnv(t testing.TB) *TestEnv {
	t.Helper()
	store := sqlitestore.OpenTest(t)
	fx := sqlitestore.NewFixtures(t, store)
	for _, id := range []string{"admin", "mod", "alice", "bob"} {
		fx.Account(id)
	}
	fx.Role("admin", moderation.RoleAdmin)
	fx.Role("mod", moderation.RoleModerator)

	roles := moderation.NewRoleService(store)
	mod := moderation.NewModerationService(store, roles)
	blocks := moderation.NewBlockService(store)
	h := NewHandler(
		roles,
		mod,
		blocks,
		moderation.NewAdminService(store, roles, mod),
		feed.NewService(store, blocks),
	)
	h.SetHealthCheck(store.Ping)
	return &TestEnv{Handler: h, Store: store, Fixtures: fx, Moderation: mod}
}

// NewAuthenticatedRequest builds a request carrying accountID as the
// principal. An empty accountID yields an anonymous request. A non-nil body
// is encoded as JSON.
func NewAuthenticatedRequest(t testing.TB, method, target string, body any, accountID string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accountID != "" {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), accountID))
	}
	return req
}

// DecodeResponse decodes a recorded JSON response into v
func DecodeResponse(t testing.TB, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
