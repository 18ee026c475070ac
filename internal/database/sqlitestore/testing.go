package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

// OpenTest opens a fresh store in a temporary directory that is removed
// when the test ends.
func OpenTest(t testing.TB) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "agora.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Fixtures seeds test data through the store
type Fixtures struct {
	t     testing.TB
	store *Store
	clock time.Time
}

// NewFixtures returns a fixture builder for store
func NewFixtures(t testing.TB, store *Store) *Fixtures {
	return &Fixtures{t: t, store: store, clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// tick returns strictly increasing timestamps so ordering is deterministic
func (f *Fixtures) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// Account creates an account with the given id
func (f *Fixtures) Account(id string) {
	f.t.Helper()
	if err := f.store.UpsertAccount(context.Background(), moderation.Account{
		ID:          id,
		DisplayName: "Account " + id,
		CreatedAt:   f.tick(),
	}); err != nil {
		f.t.Fatalf("seed account %s: %v", id, err)
	}
}

// Role grants role to id directly, recorded as a system change
func (f *Fixtures) Role(id string, role moderation.Role) {
	f.t.Helper()
	if _, err := f.store.ApplyRoleChange(context.Background(), moderation.RoleChange{
		ID:        "seed-" + id + "-" + string(role),
		ActorID:   moderation.SystemActor,
		AccountID: id,
		NewRole:   role,
		Reason:    "fixture",
		At:        f.tick(),
	}); err != nil {
		f.t.Fatalf("seed role %s: %v", id, err)
	}
}

// Post creates a post by author
func (f *Fixtures) Post(id, author string, anonymous bool) {
	f.t.Helper()
	if err := f.store.CreatePost(context.Background(), moderation.Post{
		ID:          id,
		AuthorID:    author,
		Body:        "post " + id,
		IsAnonymous: anonymous,
		CreatedAt:   f.tick(),
	}); err != nil {
		f.t.Fatalf("seed post %s: %v", id, err)
	}
}

// Comment creates a comment on postID, replying to parentID when non-empty
func (f *Fixtures) Comment(id, postID, parentID, author string) {
	f.t.Helper()
	if err := f.store.CreateComment(context.Background(), moderation.Comment{
		ID:        id,
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  author,
		Body:      "comment " + id,
		CreatedAt: f.tick(),
	}); err != nil {
		f.t.Fatalf("seed comment %s: %v", id, err)
	}
}

// Reaction creates a reaction on a post or, when commentID is set, a comment
func (f *Fixtures) Reaction(id, author, postID, commentID string) {
	f.t.Helper()
	r := moderation.Reaction{ID: id, AuthorID: author, Kind: "like", CreatedAt: f.tick()}
	if commentID != "" {
		r.CommentID = commentID
	} else {
		r.PostID = postID
	}
	if err := f.store.CreateReaction(context.Background(), r); err != nil {
		f.t.Fatalf("seed reaction %s: %v", id, err)
	}
}
