package moderation

import (
	"context"
	"time"

	"tangled.org/agora.social/agora/internal/metrics"

	"github.com/rs/zerolog/log"
)

// BlockService manages the directed block relation between accounts
type BlockService struct {
	store Store
	now   func() time.Time
}

// NewBlockService creates a block service backed by store
func NewBlockService(store Store) *BlockService {
	return &BlockService{store: store, now: time.Now}
}

// Block makes actorID block targetID. Blocking an already blocked account
// succeeds without creating a duplicate.
func (s *BlockService) Block(ctx context.Context, actorID, targetID string) error {
	if actorID == "" {
		return ErrForbidden
	}
	if actorID == targetID {
		return ErrSelfBlock
	}
	acct, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		return storageErr("get account", err)
	}
	if acct == nil {
		return ErrNotFound
	}

	if err := s.store.InsertBlock(ctx, Block{
		BlockerID: actorID,
		BlockedID: targetID,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return storageErr("insert block", err)
	}

	metrics.BlocksTotal.WithLabelValues("block").Inc()
	log.Debug().Str("actor", actorID).Str("target", targetID).Msg("moderation: account blocked")
	return nil
}

// Unblock removes actorID's block on targetID. Removing a block that does
// not exist is not an error.
func (s *BlockService) Unblock(ctx context.Context, actorID, targetID string) error {
	if actorID == "" {
		return ErrForbidden
	}
	if err := s.store.DeleteBlock(ctx, actorID, targetID); err != nil {
		return storageErr("delete block", err)
	}

	metrics.BlocksTotal.WithLabelValues("unblock").Inc()
	log.Debug().Str("actor", actorID).Str("target", targetID).Msg("moderation: account unblocked")
	return nil
}

// IsBlocked reports whether either account blocks the other.
// Lookup failures are logged and treated as blocked.
func (s *BlockService) IsBlocked(ctx context.Context, a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	blocked, err := s.store.HasBlockEither(ctx, a, b)
	if err != nil {
		log.Error().Err(err).Str("a", a).Str("b", b).Msg("moderation: block lookup failed")
		return true
	}
	return blocked
}

// ListBlocked returns the accounts actorID blocks, newest first
func (s *BlockService) ListBlocked(ctx context.Context, actorID string) ([]Block, error) {
	if actorID == "" {
		return nil, ErrForbidden
	}
	blocks, err := s.store.ListBlocked(ctx, actorID)
	if err != nil {
		return nil, storageErr("list blocks", err)
	}
	return blocks, nil
}
