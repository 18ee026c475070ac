package moderation_test

import (
	"context"
	"testing"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedThread creates alice's post p1 with a reply tree and reactions:
// c1 <- c2 <- c3 and a separate top-level c4 by bob.
func seedThread(e *env) {
	e.fx.Post("p1", "alice", false)
	e.fx.Comment("c1", "p1", "", "bob")
	e.fx.Comment("c2", "p1", "c1", "alice")
	e.fx.Comment("c3", "p1", "c2", "bob")
	e.fx.Comment("c4", "p1", "", "bob")
	e.fx.Reaction("r1", "bob", "p1", "")
	e.fx.Reaction("r2", "alice", "", "c3")
}

func postExists(t *testing.T, e *env, id string) bool {
	t.Helper()
	p, err := e.store.GetPost(context.Background(), id)
	require.NoError(t, err)
	return p != nil
}

func TestDeleteContent_AuthorDeletesOwnPost(t *testing.T) {
	e := setup(t)
	seedThread(e)

	res, err := e.mod.DeleteContent(context.Background(), "alice", moderation.ContentRef{Kind: moderation.ContentPost, ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Comments)
	assert.Equal(t, 2, res.Reactions)
	assert.False(t, postExists(t, e, "p1"))
}

func TestDeleteContent_UnrelatedUserForbidden(t *testing.T) {
	e := setup(t)
	seedThread(e)
	ctx := context.Background()

	_, err := e.mod.DeleteContent(ctx, "bob", moderation.ContentRef{Kind: moderation.ContentPost, ID: "p1"})
	assert.ErrorIs(t, err, moderation.ErrForbidden)
	assert.True(t, postExists(t, e, "p1"))

	_, err = e.mod.DeleteContent(ctx, "", moderation.ContentRef{Kind: moderation.ContentPost, ID: "p1"})
	assert.ErrorIs(t, err, moderation.ErrForbidden)
}

func TestDeleteContent_ModeratorRemovesPostAndComments(t *testing.T) {
	e := setup(t)
	seedThread(e)
	ctx := context.Background()

	res, err := e.mod.DeleteContent(ctx, "mod", moderation.ContentRef{Kind: moderation.ContentPost, ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Comments)
	assert.False(t, postExists(t, e, "p1"))

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		c, err := e.store.GetComment(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, c, "comment %s", id)
	}
}

func TestDeleteContent_CommentSubtree(t *testing.T) {
	e := setup(t)
	seedThread(e)
	ctx := context.Background()

	// bob authored c1; the replies below it go with it
	res, err := e.mod.DeleteContent(ctx, "bob", moderation.ContentRef{Kind: moderation.ContentComment, ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Comments)
	assert.Equal(t, 1, res.Reactions)

	c4, err := e.store.GetComment(ctx, "c4")
	require.NoError(t, err)
	assert.NotNil(t, c4)
	assert.True(t, postExists(t, e, "p1"))
}

func TestDeleteContent_AdminDeletesAnyComment(t *testing.T) {
	e := setup(t)
	seedThread(e)
	_, err := e.mod.DeleteContent(context.Background(), "admin", moderation.ContentRef{Kind: moderation.ContentComment, ID: "c4"})
	require.NoError(t, err)
}

func TestDeleteContent_ResolvesOpenReports(t *testing.T) {
	e := setup(t)
	seedThread(e)
	ctx := context.Background()

	_, err := e.mod.FileReport(ctx, "bob", moderation.ReportTarget{PostID: "p1"}, "Spam", "")
	require.NoError(t, err)
	_, err = e.mod.FileReport(ctx, "alice", moderation.ReportTarget{CommentID: "c3"}, "Spam", "")
	require.NoError(t, err)

	res, err := e.mod.DeleteContent(ctx, "mod", moderation.ContentRef{Kind: moderation.ContentPost, ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ResolvedReports)

	open, err := e.mod.CountOpenReports(ctx)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestDeleteContent_Errors(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.mod.DeleteContent(ctx, "admin", moderation.ContentRef{Kind: moderation.ContentPost, ID: "missing"})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	_, err = e.mod.DeleteContent(ctx, "admin", moderation.ContentRef{Kind: moderation.ContentPost})
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	_, err = e.mod.DeleteContent(ctx, "admin", moderation.ContentRef{Kind: "photo", ID: "x"})
	assert.ErrorIs(t, err, moderation.ErrValidation)
}
