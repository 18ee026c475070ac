package gormstore

import (
	"context"
	"os"
	"testing"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTest connects to the database named by AGORA_TEST_POSTGRES_DSN. Ids are
// prefixed per test so runs against a shared database do not collide.
func openTest(t *testing.T) (*Store, func(string) string) {
	t.Helper()
	dsn := os.Getenv("AGORA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGORA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn, Options{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations(ctx))

	prefix := uuid.NewString()[:8] + "-"
	return store, func(id string) string { return prefix + id }
}

func TestRoleChanges(t *testing.T) {
	ctx := context.Background()
	store, id := openTest(t)
	now := time.Now().UTC()

	for _, a := range []string{"admin", "alice"} {
		require.NoError(t, store.UpsertAccount(ctx, moderation.Account{ID: id(a), CreatedAt: now}))
	}
	_, err := store.ApplyRoleChange(ctx, moderation.RoleChange{
		ID: uuid.NewString(), ActorID: moderation.SystemActor, AccountID: id("admin"),
		NewRole: moderation.RoleAdmin, At: now,
	})
	require.NoError(t, err)

	rec, err := store.ApplyRoleChange(ctx, moderation.RoleChange{
		ID: uuid.NewString(), ActorID: id("admin"), AccountID: id("alice"),
		NewRole: moderation.RoleModerator, Reason: "helpful", At: now,
	})
	require.NoError(t, err)
	assert.Nil(t, rec.OldRole)

	_, err = store.ApplyRoleChange(ctx, moderation.RoleChange{
		ID: uuid.NewString(), ActorID: id("alice"), AccountID: id("admin"),
		NewRole: moderation.RoleUser, At: now,
	})
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	rec, err = store.ApplyRoleChange(ctx, moderation.RoleChange{
		ID: uuid.NewString(), ActorID: id("admin"), AccountID: id("alice"),
		NewRole: moderation.RoleUser, RequireElevated: true, At: now,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.OldRole)
	assert.Equal(t, moderation.RoleModerator, *rec.OldRole)

	_, err = store.ApplyRoleChange(ctx, moderation.RoleChange{
		ID: uuid.NewString(), ActorID: id("admin"), AccountID: id("alice"),
		NewRole: moderation.RoleUser, RequireElevated: true, At: now,
	})
	assert.ErrorIs(t, err, moderation.ErrAlreadyDefault)

	records, err := store.ListRoleChanges(ctx, id("alice"), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Greater(t, records[0].Seq, records[1].Seq)
}

func TestDeleteContentCascade(t *testing.T) {
	ctx := context.Background()
	store, id := openTest(t)
	now := time.Now().UTC()

	require.NoError(t, store.UpsertAccount(ctx, moderation.Account{ID: id("author"), CreatedAt: now}))
	require.NoError(t, store.CreatePost(ctx, moderation.Post{ID: id("p"), AuthorID: id("author"), CreatedAt: now}))
	require.NoError(t, store.CreateComment(ctx, moderation.Comment{ID: id("c1"), PostID: id("p"), AuthorID: id("author"), CreatedAt: now}))
	require.NoError(t, store.CreateComment(ctx, moderation.Comment{ID: id("c2"), PostID: id("p"), ParentID: id("c1"), AuthorID: id("author"), CreatedAt: now}))
	require.NoError(t, store.CreateReaction(ctx, moderation.Reaction{ID: id("r1"), AuthorID: id("author"), CommentID: id("c2"), Kind: "like", CreatedAt: now}))
	require.NoError(t, store.CreateReport(ctx, moderation.Report{
		ID: id("rep"), ReporterID: id("author"), Target: moderation.ReportTarget{CommentID: id("c1")},
		Reason: "spam", Status: moderation.ReportStatusOpen, CreatedAt: now,
	}))

	res, err := store.DeleteContent(ctx, moderation.ContentRef{Kind: moderation.ContentComment, ID: id("c1")}, id("author"), now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Comments)
	assert.Equal(t, 1, res.Reactions)
	assert.Equal(t, 1, res.ResolvedReports)

	c, err := store.GetComment(ctx, id("c2"))
	require.NoError(t, err)
	assert.Nil(t, c)

	err = store.ResolveReport(ctx, id("rep"), id("author"), now)
	assert.ErrorIs(t, err, moderation.ErrConflict)

	_, err = store.DeleteContent(ctx, moderation.ContentRef{Kind: moderation.ContentComment, ID: id("c1")}, id("author"), now)
	assert.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestBlocksAndVisibility(t *testing.T) {
	ctx := context.Background()
	store, id := openTest(t)
	now := time.Now().UTC()

	for _, a := range []string{"a", "b"} {
		require.NoError(t, store.UpsertAccount(ctx, moderation.Account{ID: id(a), CreatedAt: now}))
	}
	require.NoError(t, store.CreatePost(ctx, moderation.Post{ID: id("pb"), AuthorID: id("b"), CreatedAt: now}))

	block := moderation.Block{BlockerID: id("a"), BlockedID: id("b"), CreatedAt: now}
	require.NoError(t, store.InsertBlock(ctx, block))
	require.NoError(t, store.InsertBlock(ctx, block))

	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		blocked, err := store.HasBlockEither(ctx, id(pair[0]), id(pair[1]))
		require.NoError(t, err)
		assert.True(t, blocked)
	}

	posts, err := store.ListVisiblePosts(ctx, id("a"), now.Add(time.Minute), "", 50)
	require.NoError(t, err)
	for _, p := range posts {
		assert.NotEqual(t, id("pb"), p.Post.ID)
	}

	require.NoError(t, store.DeleteBlock(ctx, id("a"), id("b")))
	blocked, err := store.HasBlockEither(ctx, id("b"), id("a"))
	require.NoError(t, err)
	assert.False(t, blocked)
}
