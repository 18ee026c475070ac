package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"
)

const accountColumns = `a.id, a.display_name, a.bio, a.avatar_ref, a.is_private, a.show_email,
	a.show_phone, a.is_verified, a.disabled, a.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (*moderation.Account, error) {
	var a moderation.Account
	var isPrivate, showEmail, showPhone, isVerified, disabled int
	var createdAt string
	dest := []any{&a.ID, &a.DisplayName, &a.Bio, &a.AvatarRef, &isPrivate, &showEmail,
		&showPhone, &isVerified, &disabled, &createdAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	a.IsPrivate = isPrivate == 1
	a.ShowEmail = showEmail == 1
	a.ShowPhone = showPhone == 1
	a.IsVerified = isVerified == 1
	a.Disabled = disabled == 1
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *Store) UpsertAccount(ctx context.Context, acct moderation.Account) error {
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts
			(id, display_name, bio, avatar_ref, is_private, show_email, show_phone, is_verified, disabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			bio          = excluded.bio,
			avatar_ref   = excluded.avatar_ref,
			is_private   = excluded.is_private,
			show_email   = excluded.show_email,
			show_phone   = excluded.show_phone,
			is_verified  = excluded.is_verified,
			disabled     = excluded.disabled
	`, acct.ID, acct.DisplayName, acct.Bio, acct.AvatarRef, boolInt(acct.IsPrivate),
		boolInt(acct.ShowEmail), boolInt(acct.ShowPhone), boolInt(acct.IsVerified),
		boolInt(acct.Disabled), formatTime(acct.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*moderation.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = ?`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]moderation.AccountWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`, COALESCE(r.role, 'user')
		FROM accounts a
		LEFT JOIN account_roles r ON r.account_id = a.id
		ORDER BY a.created_at DESC, a.id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []moderation.AccountWithRole
	for rows.Next() {
		var role string
		acct, err := scanAccount(rows, &role)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, moderation.AccountWithRole{Account: *acct, Role: moderation.Role(role)})
	}
	return out, rows.Err()
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
