package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subtreeCTE = `WITH RECURSIVE subtree(id) AS (
	SELECT id FROM comments WHERE id = ?
	UNION ALL
	SELECT c.id FROM comments c JOIN subtree ON c.parent_id = subtree.id
) `

func (s *Store) CreatePost(ctx context.Context, p moderation.Post) error {
	if err := s.db.WithContext(ctx).Create(&postModel{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Body:        p.Body,
		IsAnonymous: p.IsAnonymous,
		CreatedAt:   p.CreatedAt,
	}).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, c moderation.Comment) error {
	if err := s.db.WithContext(ctx).Create(&commentModel{
		ID:          c.ID,
		PostID:      c.PostID,
		ParentID:    optional(c.ParentID),
		AuthorID:    c.AuthorID,
		Body:        c.Body,
		IsAnonymous: c.IsAnonymous,
		CreatedAt:   c.CreatedAt,
	}).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *Store) CreateReaction(ctx context.Context, r moderation.Reaction) error {
	if err := s.db.WithContext(ctx).Create(&reactionModel{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		PostID:    optional(r.PostID),
		CommentID: optional(r.CommentID),
		Kind:      r.Kind,
		CreatedAt: r.CreatedAt,
	}).Error; err != nil {
		return fmt.Errorf("create reaction: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*moderation.Post, error) {
	var m postModel
	err := s.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	p := m.toDomain()
	return &p, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*moderation.Comment, error) {
	var m commentModel
	err := s.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	c := m.toDomain()
	return &c, nil
}

func contentModel(kind moderation.ContentKind) (any, error) {
	switch kind {
	case moderation.ContentPost:
		return &postModel{}, nil
	case moderation.ContentComment:
		return &commentModel{}, nil
	default:
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
}

func contentAuthor(tx *gorm.DB, ref moderation.ContentRef) (string, bool, error) {
	model, err := contentModel(ref.Kind)
	if err != nil {
		return "", false, err
	}
	var row struct {
		AuthorID string `gorm:"column:author_id"`
	}
	err = tx.Model(model).Select("author_id").Where("id = ?", ref.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.AuthorID, true, nil
}

func (s *Store) ContentAuthor(ctx context.Context, ref moderation.ContentRef) (string, bool, error) {
	author, ok, err := contentAuthor(s.db.WithContext(ctx), ref)
	if err != nil {
		return "", false, fmt.Errorf("content author: %w", err)
	}
	return author, ok, nil
}

// DeleteContent removes a post or comment with all dependents in one
// transaction, children before parents.
func (s *Store) DeleteContent(ctx context.Context, ref moderation.ContentRef, resolvedBy string, at time.Time) (*moderation.DeletionResult, error) {
	var res moderation.DeletionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := contentModel(ref.Kind)
		if err != nil {
			return err
		}
		var locked struct{ ID string }
		err = tx.Model(model).Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", ref.ID).Take(&locked).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return moderation.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock content: %w", err)
		}

		exec := func(what string, count *int, sql string, args ...any) error {
			r := tx.Exec(sql, args...)
			if r.Error != nil {
				return fmt.Errorf("%s: %w", what, r.Error)
			}
			if count != nil {
				*count = int(r.RowsAffected)
			}
			return nil
		}

		if ref.Kind == moderation.ContentPost {
			if err := exec("resolve reports", &res.ResolvedReports, `
				UPDATE reports SET status = 'resolved', resolved_by = ?, resolved_at = ?
				WHERE status = 'open' AND (target_post_id = ?
					OR target_comment_id IN (SELECT id FROM comments WHERE post_id = ?))
			`, resolvedBy, at, ref.ID, ref.ID); err != nil {
				return err
			}
			if err := exec("delete reactions", &res.Reactions, `
				DELETE FROM reactions
				WHERE post_id = ? OR comment_id IN (SELECT id FROM comments WHERE post_id = ?)
			`, ref.ID, ref.ID); err != nil {
				return err
			}
			if err := exec("delete comments", &res.Comments,
				`DELETE FROM comments WHERE post_id = ?`, ref.ID); err != nil {
				return err
			}
			return exec("delete post", nil, `DELETE FROM posts WHERE id = ?`, ref.ID)
		}

		if err := exec("resolve reports", &res.ResolvedReports, subtreeCTE+`
			UPDATE reports SET status = 'resolved', resolved_by = ?, resolved_at = ?
			WHERE status = 'open' AND target_comment_id IN (SELECT id FROM subtree)
		`, ref.ID, resolvedBy, at); err != nil {
			return err
		}
		if err := exec("delete reactions", &res.Reactions, subtreeCTE+`
			DELETE FROM reactions WHERE comment_id IN (SELECT id FROM subtree)
		`, ref.ID); err != nil {
			return err
		}
		return exec("delete comments", &res.Comments, subtreeCTE+`
			DELETE FROM comments WHERE id IN (SELECT id FROM subtree)
		`, ref.ID)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&postModel{}).Where("author_id = ?", authorID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return int(n), nil
}

// blockedEither is the visibility predicate shared by the feed queries.
// Format it with the author column; it binds the viewer id twice.
const blockedEither = `NOT EXISTS (
	SELECT 1 FROM blocks b
	WHERE (b.blocker_id = ? AND b.blocked_id = %[1]s)
		OR (b.blocker_id = %[1]s AND b.blocked_id = ?)
)`

// ListVisiblePosts returns posts ordered after the (before, beforeID) key,
// newest first, excluding posts whose author is in a block relation with
// viewerID and posts by disabled accounts.
func (s *Store) ListVisiblePosts(ctx context.Context, viewerID string, before time.Time, beforeID string, limit int) ([]moderation.PostSummary, error) {
	var rows []postSummaryRow
	err := s.db.WithContext(ctx).
		Table("posts AS p").
		Select(`p.*,
			(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comment_count,
			(SELECT COUNT(*) FROM reactions r WHERE r.post_id = p.id) AS reaction_count`).
		Joins("JOIN accounts a ON a.id = p.author_id").
		Where("(p.created_at < ? OR (p.created_at = ? AND p.id < ?)) AND a.disabled = FALSE", before, before, beforeID).
		Where(fmt.Sprintf(blockedEither, "p.author_id"), viewerID, viewerID).
		Order("p.created_at DESC, p.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := make([]moderation.PostSummary, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, moderation.PostSummary{
			Post:          r.Post.toDomain(),
			CommentCount:  r.CommentCount,
			ReactionCount: r.ReactionCount,
		})
	}
	return posts, nil
}

// ListVisibleComments returns the comments of postID in creation order,
// excluding comments by disabled accounts and by accounts in a block
// relation with viewerID.
func (s *Store) ListVisibleComments(ctx context.Context, viewerID, postID string) ([]moderation.Comment, error) {
	var rows []commentModel
	err := s.db.WithContext(ctx).
		Table("comments AS c").
		Select("c.*").
		Joins("JOIN accounts a ON a.id = c.author_id").
		Where("c.post_id = ? AND a.disabled = FALSE", postID).
		Where(fmt.Sprintf(blockedEither, "c.author_id"), viewerID, viewerID).
		Order("c.created_at, c.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments := make([]moderation.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.toDomain())
	}
	return comments, nil
}
