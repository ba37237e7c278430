package repo

import (
	"context"

	"processmap/internal/attr"
	"processmap/internal/domain"
)

// UpsertAttributeName records a (name, type) pair; existing pairs are kept.
func (r Repo) UpsertAttributeName(ctx context.Context, name string, kind attr.Kind, now string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO attribute_names(name,type,created_at) VALUES (?,?,?)`, name, string(kind), now)
	return err
}

func (r Repo) ListAttributeNames(ctx context.Context) ([]domain.AttributeName, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT name,type,created_at FROM attribute_names ORDER BY name COLLATE NOCASE, name, type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AttributeName
	for rows.Next() {
		var n domain.AttributeName
		var kind string
		if err := rows.Scan(&n.Name, &kind, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = attr.Kind(kind)
		res = append(res, n)
	}
	return res, rows.Err()
}

// DeleteAttributeName removes every catalog entry for name, whatever its type.
func (r Repo) DeleteAttributeName(ctx context.Context, name string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `DELETE FROM attribute_names WHERE name=?`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
