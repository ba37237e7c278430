package repo

import (
	"context"
	"database/sql"
	"strings"

	"processmap/internal/domain"
)

// NormalizeEmail is the comparison form used by the allow-list.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r Repo) AllowUser(ctx context.Context, email, addedBy, now string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO allowed_users(email, added_by, created_at) VALUES (?,?,?)`,
		NormalizeEmail(email), nullable(addedBy), now)
	return err
}

func (r Repo) DenyUser(ctx context.Context, email string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM allowed_users WHERE email=?`, NormalizeEmail(email))
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) IsUserAllowed(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT 1 FROM allowed_users WHERE email=? LIMIT 1`, NormalizeEmail(email)).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListAllowedUsers(ctx context.Context) ([]domain.AllowedUser, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT email, COALESCE(added_by,''), created_at FROM allowed_users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.AllowedUser
	for rows.Next() {
		var u domain.AllowedUser
		if err := rows.Scan(&u.Email, &u.AddedBy, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
