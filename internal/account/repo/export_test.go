package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

func (r *AccountRepo) getAccount(ctx context.Context, userID string) (*entity.Account, error) {
	q := r.db.Rebind(fmt.Sprintf(`SELECT user_id, username, password_hash, user_type, is_active, auth_provider
		FROM %s WHERE user_id = ?`, r.tables.qualify(r.tables.Login)))
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, userID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) countAccounts(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.tables.qualify(r.tables.Login)))
	return n, err
}

func (r *AccountRepo) setActive(ctx context.Context, userID string, active bool) error {
	q := r.db.Rebind(fmt.Sprintf(`UPDATE %s SET is_active = ? WHERE user_id = ?`, r.tables.qualify(r.tables.Login)))
	res, err := r.db.ExecContext(ctx, q, active, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
