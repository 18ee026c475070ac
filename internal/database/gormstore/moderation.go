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

// ========== Reports ==========

func (s *Store) CreateReport(ctx context.Context, report moderation.Report) error {
	if err := s.db.WithContext(ctx).Create(&reportModel{
		ID:              report.ID,
		ReporterID:      report.ReporterID,
		TargetAccountID: optional(report.Target.AccountID),
		TargetPostID:    optional(report.Target.PostID),
		TargetCommentID: optional(report.Target.CommentID),
		Reason:          report.Reason,
		Description:     report.Description,
		Status:          string(report.Status),
		ResolvedBy:      report.ResolvedBy,
		CreatedAt:       report.CreatedAt,
	}).Error; err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	var m reportModel
	err := s.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	r := m.toDomain()
	return &r, nil
}

func (s *Store) ListReports(ctx context.Context, status moderation.ReportStatus, limit int) ([]moderation.Report, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []reportModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]moderation.Report, 0, len(rows))
	for _, r := range rows {
		reports = append(reports, r.toDomain())
	}
	return reports, nil
}

func (s *Store) ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&reportModel{}).
		Where("id = ? AND status = ?", id, string(moderation.ReportStatusOpen)).
		Updates(map[string]any{
			"status":      string(moderation.ReportStatusResolved),
			"resolved_by": resolvedBy,
			"resolved_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("resolve report: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&reportModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	if n == 0 {
		return moderation.ErrNotFound
	}
	return moderation.ErrConflict
}

func (s *Store) countReports(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&reportModel{}).Where(query, args...).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) CountReportsFromUserSince(ctx context.Context, reporterID string, since time.Time) (int, error) {
	n, err := s.countReports(ctx, "reporter_id = ? AND created_at >= ?", reporterID, since)
	if err != nil {
		return 0, fmt.Errorf("count recent reports: %w", err)
	}
	return n, nil
}

func (s *Store) CountReportsByReporter(ctx context.Context, reporterID string) (int, error) {
	n, err := s.countReports(ctx, "reporter_id = ?", reporterID)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

func (s *Store) CountOpenReports(ctx context.Context) (int, error) {
	n, err := s.countReports(ctx, "status = ?", string(moderation.ReportStatusOpen))
	if err != nil {
		return 0, fmt.Errorf("count open reports: %w", err)
	}
	return n, nil
}

// ========== Blocks ==========

func (s *Store) InsertBlock(ctx context.Context, b moderation.Block) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&blockModel{BlockerID: b.BlockerID, BlockedID: b.BlockedID, CreatedAt: b.CreatedAt}).Error
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	err := s.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&blockModel{}).Error
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (s *Store) HasBlockEither(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&blockModel{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListBlocked(ctx context.Context, blockerID string) ([]moderation.Block, error) {
	var rows []blockModel
	err := s.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	blocks := make([]moderation.Block, 0, len(rows))
	for _, r := range rows {
		blocks = append(blocks, moderation.Block{BlockerID: r.BlockerID, BlockedID: r.BlockedID, CreatedAt: r.CreatedAt})
	}
	return blocks, nil
}
