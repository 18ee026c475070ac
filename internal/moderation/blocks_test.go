package moderation_test

import (
	"context"
	"testing"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlock_Self(t *testing.T) {
	e := setup(t)
	err := e.blocks.Block(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, moderation.ErrSelfBlock)
	assert.Equal(t, "self_block", moderation.Kind(err))
}

func TestBlock_Symmetric(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	assert.False(t, e.blocks.IsBlocked(ctx, "alice", "bob"))
	require.NoError(t, e.blocks.Block(ctx, "alice", "bob"))

	assert.True(t, e.blocks.IsBlocked(ctx, "alice", "bob"))
	assert.True(t, e.blocks.IsBlocked(ctx, "bob", "alice"))
	assert.False(t, e.blocks.IsBlocked(ctx, "alice", "mod"))

	require.NoError(t, e.blocks.Unblock(ctx, "alice", "bob"))
	assert.False(t, e.blocks.IsBlocked(ctx, "bob", "alice"))
}

func TestBlock_Idempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.blocks.Block(ctx, "alice", "bob"))
	require.NoError(t, e.blocks.Block(ctx, "alice", "bob"))

	blocks, err := e.blocks.ListBlocked(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "bob", blocks[0].BlockedID)

	require.NoError(t, e.blocks.Unblock(ctx, "alice", "bob"))
	require.NoError(t, e.blocks.Unblock(ctx, "alice", "bob"))
}

func TestBlock_OnlyBlockerCanLift(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.blocks.Block(ctx, "alice", "bob"))
	require.NoError(t, e.blocks.Unblock(ctx, "bob", "alice"))
	assert.True(t, e.blocks.IsBlocked(ctx, "alice", "bob"))
}

func TestBlock_Errors(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.blocks.Block(ctx, "alice", "ghost"), moderation.ErrNotFound)
	assert.ErrorIs(t, e.blocks.Block(ctx, "", "bob"), moderation.ErrForbidden)
	assert.ErrorIs(t, e.blocks.Unblock(ctx, "", "bob"), moderation.ErrForbidden)

	_, err := e.blocks.ListBlocked(ctx, "")
	assert.ErrorIs(t, err, moderation.ErrForbidden)

	assert.False(t, e.blocks.IsBlocked(ctx, "", "bob"))
	assert.False(t, e.blocks.IsBlocked(ctx, "bob", "bob"))
}

func TestIsBlocked_StoreFailureTreatedAsBlocked(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.store.Close())
	assert.True(t, e.blocks.IsBlocked(context.Background(), "alice", "bob"))
}
