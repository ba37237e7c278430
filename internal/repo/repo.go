package repo

import (
	"context"
	"database/sql"
	"errors"

	"processmap/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Queryer is the subset of *sql.DB and *sql.Tx the repo needs.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

// WithTx returns a copy of the repo that runs every statement in tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	r.tx = tx
	return r
}

func (r Repo) q() Queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

func (r Repo) InsertProcessTitle(ctx context.Context, p domain.ProcessTitle) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO process_titles(id,name,seq,depends_on,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.Seq, nullableStringPtr(p.DependsOn), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProcessTitle(ctx context.Context, id string) (domain.ProcessTitle, error) {
	row := r.q().QueryRowContext(ctx, `SELECT id,name,seq,depends_on,created_at,updated_at FROM process_titles WHERE id=?`, id)
	p, err := scanProcessTitle(row)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// ListProcessTitles orders by sequence number, ties broken by name.
func (r Repo) ListProcessTitles(ctx context.Context) ([]domain.ProcessTitle, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id,name,seq,depends_on,created_at,updated_at FROM process_titles ORDER BY seq, name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProcessTitle
	for rows.Next() {
		p, err := scanProcessTitle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProcessTitle(ctx context.Context, p domain.ProcessTitle) error {
	res, err := r.q().ExecContext(ctx, `UPDATE process_titles SET name=?, seq=?, depends_on=?, updated_at=? WHERE id=?`,
		p.Name, p.Seq, nullableStringPtr(p.DependsOn), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteProcessTitle(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM process_titles WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcessTitle(s scanner) (domain.ProcessTitle, error) {
	var p domain.ProcessTitle
	var dep sql.NullString
	if err := s.Scan(&p.ID, &p.Name, &p.Seq, &dep, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if dep.Valid {
		p.DependsOn = &dep.String
	}
	return p, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
