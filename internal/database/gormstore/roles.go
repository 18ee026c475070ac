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

func (s *Store) UpsertAccount(ctx context.Context, acct moderation.Account) error {
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	m := accountModel{
		ID:          acct.ID,
		DisplayName: acct.DisplayName,
		Bio:         acct.Bio,
		AvatarRef:   acct.AvatarRef,
		IsPrivate:   acct.IsPrivate,
		ShowEmail:   acct.ShowEmail,
		ShowPhone:   acct.ShowPhone,
		IsVerified:  acct.IsVerified,
		Disabled:    acct.Disabled,
		CreatedAt:   acct.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "bio", "avatar_ref", "is_private", "show_email",
			"show_phone", "is_verified", "disabled",
		}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*moderation.Account, error) {
	var m accountModel
	err := s.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	acct := m.toDomain()
	return &acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]moderation.AccountWithRole, error) {
	var rows []accountRoleRow
	err := s.db.WithContext(ctx).
		Table("accounts AS a").
		Select("a.*, COALESCE(r.role, 'user') AS role").
		Joins("LEFT JOIN account_roles r ON r.account_id = a.id").
		Order("a.created_at DESC, a.id").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]moderation.AccountWithRole, 0, len(rows))
	for _, r := range rows {
		out = append(out, moderation.AccountWithRole{Account: r.Account.toDomain(), Role: moderation.Role(r.Role)})
	}
	return out, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&accountModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return int(n), nil
}

func (s *Store) GetRole(ctx context.Context, accountID string) (moderation.Role, bool, error) {
	var m roleModel
	err := s.db.WithContext(ctx).Take(&m, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	return moderation.Role(m.Role), true, nil
}

// ApplyRoleChange locks the target account row so concurrent changes to the
// same account commit one after the other and each audit record sees the
// role the previous one wrote.
func (s *Store) ApplyRoleChange(ctx context.Context, c moderation.RoleChange) (*moderation.RoleChangeRecord, error) {
	var rec moderation.RoleChangeRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ActorID != moderation.SystemActor {
			var actor roleModel
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Take(&actor, "account_id = ?", c.ActorID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return moderation.ErrForbidden
			}
			if err != nil {
				return fmt.Errorf("get actor role: %w", err)
			}
			if moderation.Role(actor.Role) != moderation.RoleAdmin {
				return moderation.ErrForbidden
			}
		}

		var acct accountModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Take(&acct, "id = ?", c.AccountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return moderation.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		var current roleModel
		hadRow := true
		err = tx.Take(&current, "account_id = ?", c.AccountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			hadRow = false
		} else if err != nil {
			return fmt.Errorf("get current role: %w", err)
		}
		old := moderation.Role(current.Role)
		if c.RequireElevated && (!hadRow || !old.IsElevated()) {
			return moderation.ErrAlreadyDefault
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
		}).Create(&roleModel{
			AccountID: c.AccountID,
			Role:      string(c.NewRole),
			UpdatedAt: c.At,
		}).Error; err != nil {
			return fmt.Errorf("upsert role: %w", err)
		}

		change := roleChangeModel{
			ChangeID:  c.ID,
			AccountID: c.AccountID,
			NewRole:   string(c.NewRole),
			ChangedBy: c.ActorID,
			Reason:    c.Reason,
			CreatedAt: c.At,
		}
		if hadRow {
			change.OldRole = &current.Role
		}
		if err := tx.Create(&change).Error; err != nil {
			return fmt.Errorf("append role change: %w", err)
		}
		rec = change.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListRoleChanges(ctx context.Context, accountID string, limit int) ([]moderation.RoleChangeRecord, error) {
	var rows []roleChangeModel
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list role changes: %w", err)
	}
	records := make([]moderation.RoleChangeRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

func (s *Store) CountByRole(ctx context.Context) (map[moderation.Role]int, error) {
	var rows []struct {
		Role  string
		Count int
	}
	err := s.db.WithContext(ctx).
		Model(&roleModel{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count roles: %w", err)
	}
	counts := make(map[moderation.Role]int, len(rows))
	for _, r := range rows {
		counts[moderation.Role(r.Role)] = r.Count
	}
	return counts, nil
}
