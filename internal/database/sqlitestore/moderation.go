package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

// ========== Reports ==========

const reportColumns = `id, reporter_id, target_account_id, target_post_id, target_comment_id,
	reason, description, status, resolved_by, resolved_at, created_at`

func scanReport(row rowScanner) (*moderation.Report, error) {
	var r moderation.Report
	var account, post, comment, resolvedAt sql.NullString
	var status, createdAt string
	if err := row.Scan(&r.ID, &r.ReporterID, &account, &post, &comment,
		&r.Reason, &r.Description, &status, &r.ResolvedBy, &resolvedAt, &createdAt); err != nil {
		return nil, err
	}
	r.Target = moderation.ReportTarget{
		AccountID: account.String,
		PostID:    post.String,
		CommentID: comment.String,
	}
	r.Status = moderation.ReportStatus(status)
	r.CreatedAt = parseTime(createdAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		r.ResolvedAt = &t
	}
	return &r, nil
}

func (s *Store) CreateReport(ctx context.Context, report moderation.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports
			(id, reporter_id, target_account_id, target_post_id, target_comment_id,
			 reason, description, status, resolved_by, resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, report.ID, report.ReporterID, nullString(report.Target.AccountID),
		nullString(report.Target.PostID), nullString(report.Target.CommentID),
		report.Reason, report.Description, string(report.Status), report.ResolvedBy,
		formatTime(report.CreatedAt))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *Store) ListReports(ctx context.Context, status moderation.ReportStatus, limit int) ([]moderation.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []moderation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func (s *Store) ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = 'resolved', resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = 'open'
	`, resolvedBy, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Nothing updated: either unknown or already resolved.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM reports WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	return moderation.ErrConflict
}

func (s *Store) CountReportsFromUserSince(ctx context.Context, reporterID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports WHERE reporter_id = ? AND created_at >= ?
	`, reporterID, formatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent reports: %w", err)
	}
	return n, nil
}

func (s *Store) CountReportsByReporter(ctx context.Context, reporterID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE reporter_id = ?`, reporterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

func (s *Store) CountOpenReports(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE status = 'open'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open reports: %w", err)
	}
	return n, nil
}

// ========== Blocks ==========

func (s *Store) InsertBlock(ctx context.Context, b moderation.Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(blocker_id, blocked_id) DO NOTHING
	`, b.BlockerID, b.BlockedID, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (s *Store) HasBlockEither(ctx context.Context, a, b string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM blocks
		WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)
		LIMIT 1
	`, a, b, b, a).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return true, nil
}

func (s *Store) ListBlocked(ctx context.Context, blockerID string) ([]moderation.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blocker_id, blocked_id, created_at FROM blocks
		WHERE blocker_id = ? ORDER BY created_at DESC
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []moderation.Block
	for rows.Next() {
		var b moderation.Block
		var createdAt string
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.CreatedAt = parseTime(createdAt)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
