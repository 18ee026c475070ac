// Package feed serves the post and comment listings shown to a viewer,
// with block filtering and anonymous-author masking applied.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Source is the storage the feed reads from. Block filtering happens in the
// source's queries.
type Source interface {
	ListVisiblePosts(ctx context.Context, viewerID string, before time.Time, beforeID string, limit int) ([]moderation.PostSummary, error)
	ListVisibleComments(ctx context.Context, viewerID, postID string) ([]moderation.Comment, error)
	GetPost(ctx context.Context, id string) (*moderation.Post, error)
}

// BlockChecker answers whether two accounts are in a block relation
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) bool
}

// Item is a post as shown in the feed. AuthorID is empty for anonymous
// posts unless the viewer wrote them.
type Item struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id,omitempty"`
	Body          string    `json:"body"`
	IsAnonymous   bool      `json:"is_anonymous"`
	IsOwn         bool      `json:"is_own"`
	CommentCount  int       `json:"comment_count"`
	ReactionCount int       `json:"reaction_count"`
	CreatedAt     time.Time `json:"created_at"`
	TimeAgo       string    `json:"time_ago"`
}

// CommentItem is a comment as shown under a post
type CommentItem struct {
	ID          string    `json:"id"`
	PostID      string    `json:"post_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	AuthorID    string    `json:"author_id,omitempty"`
	Body        string    `json:"body"`
	IsAnonymous bool      `json:"is_anonymous"`
	IsOwn       bool      `json:"is_own"`
	CreatedAt   time.Time `json:"created_at"`
	TimeAgo     string    `json:"time_ago"`
}

// Page is one page of the feed. Next is the query string for the following
// page, empty on the last page.
type Page struct {
	Items []Item `json:"items"`
	Next  string `json:"next,omitempty"`
}

// Query selects a feed page. Before and BeforeID form a keyset cursor over
// (created_at, id); BeforeID alone is ignored.
type Query struct {
	Limit    int
	Before   time.Time
	BeforeID string
}

// cursor is the encoded form of a Query in next links
type cursor struct {
	Before   string `url:"before"`
	BeforeID string `url:"before_id"`
	Limit    int    `url:"limit"`
}

// ParseQuery reads limit, before and before_id from request query values
func ParseQuery(v url.Values) (Query, error) {
	var q Query
	if raw := strings.TrimSpace(v.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, &moderation.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		q.Limit = n
	}
	if raw := strings.TrimSpace(v.Get("before")); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return q, &moderation.ValidationError{Field: "before", Message: "must be an RFC 3339 timestamp"}
		}
		q.Before = t
		q.BeforeID = strings.TrimSpace(v.Get("before_id"))
	}
	return q, nil
}

// Service builds feed pages for a viewer
type Service struct {
	source Source
	blocks BlockChecker
	now    func() time.Time
}

// NewService creates a feed service
func NewService(source Source, blocks BlockChecker) *Service {
	return &Service{source: source, blocks: blocks, now: time.Now}
}

// ListPosts returns the newest visible posts before q.Before
func (s *Service) ListPosts(ctx context.Context, viewerID string, q Query) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	now := s.now()
	before, beforeID := q.Before, q.BeforeID
	if before.IsZero() {
		before, beforeID = now.Add(time.Second), ""
	}

	posts, err := s.source.ListVisiblePosts(ctx, viewerID, before, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w: %w", moderation.ErrStorage, err)
	}

	page := &Page{Items: make([]Item, 0, len(posts))}
	for _, p := range posts {
		page.Items = append(page.Items, Item{
			ID:            p.ID,
			AuthorID:      visibleAuthor(viewerID, p.AuthorID, p.IsAnonymous),
			Body:          p.Body,
			IsAnonymous:   p.IsAnonymous,
			IsOwn:         viewerID != "" && viewerID == p.AuthorID,
			CommentCount:  p.CommentCount,
			ReactionCount: p.ReactionCount,
			CreatedAt:     p.CreatedAt,
			TimeAgo:       FormatTimeAgo(p.CreatedAt, now),
		})
	}

	if len(posts) == limit {
		last := posts[len(posts)-1]
		v, err := query.Values(cursor{
			Before:   last.CreatedAt.UTC().Format(time.RFC3339Nano),
			BeforeID: last.ID,
			Limit:    limit,
		})
		if err != nil {
			return nil, fmt.Errorf("encode cursor: %w", err)
		}
		page.Next = "?" + v.Encode()
	}

	log.Debug().
		Str("viewer", viewerID).
		Int("count", len(page.Items)).
		Bool("more", page.Next != "").
		Msg("feed: page built")
	return page, nil
}

// ListComments returns the visible comments of postID in creation order.
// A post whose author is blocked either way is reported as not found.
func (s *Service) ListComments(ctx context.Context, viewerID, postID string) ([]CommentItem, error) {
	post, err := s.source.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post: %w: %w", moderation.ErrStorage, err)
	}
	if post == nil || s.blocks.IsBlocked(ctx, viewerID, post.AuthorID) {
		return nil, moderation.ErrNotFound
	}

	comments, err := s.source.ListVisibleComments(ctx, viewerID, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w: %w", moderation.ErrStorage, err)
	}

	now := s.now()
	items := make([]CommentItem, 0, len(comments))
	for _, c := range comments {
		items = append(items, CommentItem{
			ID:          c.ID,
			PostID:      c.PostID,
			ParentID:    c.ParentID,
			AuthorID:    visibleAuthor(viewerID, c.AuthorID, c.IsAnonymous),
			Body:        c.Body,
			IsAnonymous: c.IsAnonymous,
			IsOwn:       viewerID != "" && viewerID == c.AuthorID,
			CreatedAt:   c.CreatedAt,
			TimeAgo:     FormatTimeAgo(c.CreatedAt, now),
		})
	}
	return items, nil
}

func visibleAuthor(viewerID, authorID string, anonymous bool) string {
	if anonymous && viewerID != authorID {
		return ""
	}
	return authorID
}

// FormatTimeAgo returns a human-readable time of t relative to now
func FormatTimeAgo(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return formatPlural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return formatPlural(int(diff.Hours()), "hour")
	case diff < 48*time.Hour:
		return "yesterday"
	case diff < 7*24*time.Hour:
		return formatPlural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return formatPlural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return formatPlural(int(diff.Hours()/24/30), "month")
	default:
		return formatPlural(int(diff.Hours()/24/365), "year")
	}
}

func formatPlural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
