package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

// subtreeCTE selects a comment and all of its replies at any depth
const subtreeCTE = `WITH RECURSIVE subtree(id) AS (
	SELECT id FROM comments WHERE id = ?
	UNION ALL
	SELECT c.id FROM comments c JOIN subtree ON c.parent_id = subtree.id
) `

func (s *Store) CreatePost(ctx context.Context, p moderation.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, body, is_anonymous, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.AuthorID, p.Body, boolInt(p.IsAnonymous), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, c moderation.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, body, is_anonymous, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.PostID, nullString(c.ParentID), c.AuthorID, c.Body, boolInt(c.IsAnonymous), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *Store) CreateReaction(ctx context.Context, r moderation.Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (id, author_id, post_id, comment_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.AuthorID, nullString(r.PostID), nullString(r.CommentID), r.Kind, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("create reaction: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*moderation.Post, error) {
	var p moderation.Post
	var anon int
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, body, is_anonymous, created_at FROM posts WHERE id = ?
	`, id).Scan(&p.ID, &p.AuthorID, &p.Body, &anon, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	p.IsAnonymous = anon == 1
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanComment(row rowScanner) (*moderation.Comment, error) {
	var c moderation.Comment
	var parentID sql.NullString
	var anon int
	var createdAt string
	if err := row.Scan(&c.ID, &c.PostID, &parentID, &c.AuthorID, &c.Body, &anon, &createdAt); err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	c.IsAnonymous = anon == 1
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*moderation.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, `
		SELECT id, post_id, parent_id, author_id, body, is_anonymous, created_at
		FROM comments WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func contentAuthorQuery(kind moderation.ContentKind) (string, error) {
	switch kind {
	case moderation.ContentPost:
		return `SELECT author_id FROM posts WHERE id = ?`, nil
	case moderation.ContentComment:
		return `SELECT author_id FROM comments WHERE id = ?`, nil
	default:
		return "", fmt.Errorf("unknown content kind %q", kind)
	}
}

func (s *Store) ContentAuthor(ctx context.Context, ref moderation.ContentRef) (string, bool, error) {
	q, err := contentAuthorQuery(ref.Kind)
	if err != nil {
		return "", false, err
	}
	var author string
	err = s.db.QueryRowContext(ctx, q, ref.ID).Scan(&author)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("content author: %w", err)
	}
	return author, true, nil
}

// DeleteContent removes a post or comment with all dependents in one
// transaction. Children are deleted before parents so foreign keys hold at
// the end of every statement.
func (s *Store) DeleteContent(ctx context.Context, ref moderation.ContentRef, resolvedBy string, at time.Time) (*moderation.DeletionResult, error) {
	q, err := contentAuthorQuery(ref.Kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var author string
	err = tx.QueryRowContext(ctx, q, ref.ID).Scan(&author)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, moderation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock content: %w", err)
	}

	var res moderation.DeletionResult
	resolvedAt := formatTime(at)

	type step struct {
		what  string
		query string
		args  []any
		count *int
	}
	var steps []step
	switch ref.Kind {
	case moderation.ContentPost:
		steps = []step{
			{"resolve reports", `UPDATE reports SET status = 'resolved', resolved_by = ?, resolved_at = ?
				WHERE status = 'open' AND (target_post_id = ?
					OR target_comment_id IN (SELECT id FROM comments WHERE post_id = ?))`,
				[]any{resolvedBy, resolvedAt, ref.ID, ref.ID}, &res.ResolvedReports},
			{"delete reactions", `DELETE FROM reactions
				WHERE post_id = ? OR comment_id IN (SELECT id FROM comments WHERE post_id = ?)`,
				[]any{ref.ID, ref.ID}, &res.Reactions},
			{"delete comments", `DELETE FROM comments WHERE post_id = ?`, []any{ref.ID}, &res.Comments},
			{"delete post", `DELETE FROM posts WHERE id = ?`, []any{ref.ID}, nil},
		}
	case moderation.ContentComment:
		steps = []step{
			{"resolve reports", subtreeCTE + `UPDATE reports SET status = 'resolved', resolved_by = ?, resolved_at = ?
				WHERE status = 'open' AND target_comment_id IN (SELECT id FROM subtree)`,
				[]any{ref.ID, resolvedBy, resolvedAt}, &res.ResolvedReports},
			{"delete reactions", subtreeCTE + `DELETE FROM reactions WHERE comment_id IN (SELECT id FROM subtree)`,
				[]any{ref.ID}, &res.Reactions},
			{"delete comments", subtreeCTE + `DELETE FROM comments WHERE id IN (SELECT id FROM subtree)`,
				[]any{ref.ID}, &res.Comments},
		}
	}

	for _, st := range steps {
		n, err := execCount(ctx, tx, st.query, st.args...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st.what, err)
		}
		if st.count != nil {
			*st.count = n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return &res, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	r, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := r.RowsAffected()
	return int(n), err
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE author_id = ?`, authorID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// ListVisiblePosts returns posts ordered after the (before, beforeID) key,
// newest first, excluding posts whose author is blocked by or blocks
// viewerID and posts by disabled accounts. An empty beforeID admits no post
// at exactly before.
func (s *Store) ListVisiblePosts(ctx context.Context, viewerID string, before time.Time, beforeID string, limit int) ([]moderation.PostSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.author_id, p.body, p.is_anonymous, p.created_at,
			(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
			(SELECT COUNT(*) FROM reactions r WHERE r.post_id = p.id)
		FROM posts p
		JOIN accounts a ON a.id = p.author_id
		WHERE (p.created_at < ? OR (p.created_at = ? AND p.id < ?))
			AND a.disabled = 0
			AND NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = p.author_id)
					OR (b.blocker_id = p.author_id AND b.blocked_id = ?)
			)
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?
	`, formatTime(before), formatTime(before), beforeID, viewerID, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []moderation.PostSummary
	for rows.Next() {
		var p moderation.PostSummary
		var anon int
		var createdAt string
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Body, &anon, &createdAt, &p.CommentCount, &p.ReactionCount); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.IsAnonymous = anon == 1
		p.CreatedAt = parseTime(createdAt)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListVisibleComments returns the comments of postID in creation order,
// excluding comments by disabled accounts and by accounts in a block
// relation with viewerID.
func (s *Store) ListVisibleComments(ctx context.Context, viewerID, postID string) ([]moderation.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.parent_id, c.author_id, c.body, c.is_anonymous, c.created_at
		FROM comments c
		JOIN accounts a ON a.id = c.author_id
		WHERE c.post_id = ?
			AND a.disabled = 0
			AND NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker_id = ? AND b.blocked_id = c.author_id)
					OR (b.blocker_id = c.author_id AND b.blocked_id = ?)
			)
		ORDER BY c.created_at, c.id
	`, postID, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []moderation.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}
