package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tangled.org/agora.social/agora/internal/moderation"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRole(ctx context.Context, q querier, accountID string) (moderation.Role, bool, error) {
	var role string
	err := q.QueryRowContext(ctx, `SELECT role FROM account_roles WHERE account_id = ?`, accountID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return moderation.Role(role), true, nil
}

func (s *Store) GetRole(ctx context.Context, accountID string) (moderation.Role, bool, error) {
	role, ok, err := getRole(ctx, s.db, accountID)
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	return role, ok, nil
}

func (s *Store) ApplyRoleChange(ctx context.Context, c moderation.RoleChange) (*moderation.RoleChangeRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin role change: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.ActorID != moderation.SystemActor {
		actorRole, ok, err := getRole(ctx, tx, c.ActorID)
		if err != nil {
			return nil, fmt.Errorf("get actor role: %w", err)
		}
		if !ok || actorRole != moderation.RoleAdmin {
			return nil, moderation.ErrForbidden
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, c.AccountID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, moderation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}

	old, hadRow, err := getRole(ctx, tx, c.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get current role: %w", err)
	}
	if c.RequireElevated && (!hadRow || !old.IsElevated()) {
		return nil, moderation.ErrAlreadyDefault
	}

	at := formatTime(c.At)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_roles (account_id, role, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			role       = excluded.role,
			updated_at = excluded.updated_at
	`, c.AccountID, string(c.NewRole), at); err != nil {
		return nil, fmt.Errorf("upsert role: %w", err)
	}

	var oldRole *moderation.Role
	var oldCol any
	if hadRow {
		oldRole = &old
		oldCol = string(old)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO role_changes (id, account_id, old_role, new_role, changed_by, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.AccountID, oldCol, string(c.NewRole), c.ActorID, c.Reason, at)
	if err != nil {
		return nil, fmt.Errorf("append role change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("role change seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit role change: %w", err)
	}

	return &moderation.RoleChangeRecord{
		ID:        c.ID,
		Seq:       seq,
		AccountID: c.AccountID,
		OldRole:   oldRole,
		NewRole:   c.NewRole,
		ChangedBy: c.ActorID,
		Reason:    c.Reason,
		Timestamp: parseTime(at),
	}, nil
}

func (s *Store) ListRoleChanges(ctx context.Context, accountID string, limit int) ([]moderation.RoleChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, account_id, old_role, new_role, changed_by, reason, created_at
		FROM role_changes WHERE account_id = ?
		ORDER BY seq DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list role changes: %w", err)
	}
	defer rows.Close()

	var records []moderation.RoleChangeRecord
	for rows.Next() {
		var r moderation.RoleChangeRecord
		var oldRole sql.NullString
		var newRole, createdAt string
		if err := rows.Scan(&r.Seq, &r.ID, &r.AccountID, &oldRole, &newRole, &r.ChangedBy, &r.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan role change: %w", err)
		}
		if oldRole.Valid {
			old := moderation.Role(oldRole.String)
			r.OldRole = &old
		}
		r.NewRole = moderation.Role(newRole)
		r.Timestamp = parseTime(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) CountByRole(ctx context.Context) (map[moderation.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM account_roles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count roles: %w", err)
	}
	defer rows.Close()

	counts := make(map[moderation.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		counts[moderation.Role(role)] = n
	}
	return counts, rows.Err()
}
