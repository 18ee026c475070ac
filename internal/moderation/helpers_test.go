package moderation_test

import (
	"context"
	"testing"

	"tangled.org/agora.social/agora/internal/database/sqlitestore"
	"tangled.org/agora.social/agora/internal/moderation"
)

type env struct {
	store  *sqlitestore.Store
	fx     *sqlitestore.Fixtures
	roles  *moderation.RoleService
	mod    *moderation.ModerationService
	blocks *moderation.BlockService
	admin  *moderation.AdminService
}

// setup wires the services over a fresh SQLite store with accounts admin,
// mod, alice and bob. admin holds the admin role and mod the moderator role.
func setup(t *testing.T) *env {
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
	return &env{
		store:  store,
		fx:     fx,
		roles:  roles,
		mod:    mod,
		blocks: moderation.NewBlockService(store),
		admin:  moderation.NewAdminService(store, roles, mod),
	}
}

func (e *env) history(t *testing.T, accountID string) []moderation.RoleChangeRecord {
	t.Helper()
	records, err := e.store.ListRoleChanges(context.Background(), accountID, 100)
	if err != nil {
		t.Fatalf("list role changes: %v", err)
	}
	return records
}
