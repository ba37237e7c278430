package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"processmap/internal/attr"
	"processmap/internal/domain"
)

const subProcessColumns = `id,process_id,name,seq,depends_on,attributes_json,created_at,updated_at`

func (r Repo) InsertSubProcess(ctx context.Context, sp domain.SubProcess) error {
	data, err := json.Marshal(sp.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO sub_processes(`+subProcessColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		sp.ID, sp.ProcessID, sp.Name, sp.Seq, nullableStringPtr(sp.DependsOn), string(data), sp.CreatedAt, sp.UpdatedAt)
	return err
}

func (r Repo) GetSubProcess(ctx context.Context, id string) (domain.SubProcess, error) {
	row := r.q().QueryRowContext(ctx, `SELECT `+subProcessColumns+` FROM sub_processes WHERE id=?`, id)
	sp, err := scanSubProcess(row)
	if err == sql.ErrNoRows {
		return sp, ErrNotFound
	}
	return sp, err
}

// ListSubProcesses returns the sub-processes of a process title ordered by
// sequence number, ties broken by name.
func (r Repo) ListSubProcesses(ctx context.Context, processID string) ([]domain.SubProcess, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT `+subProcessColumns+` FROM sub_processes WHERE process_id=? ORDER BY seq, name COLLATE NOCASE, id`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubProcess
	for rows.Next() {
		sp, err := scanSubProcess(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sp)
	}
	return res, rows.Err()
}

// UpdateSubProcess writes name, sequence and dependency. Attributes are
// saved separately through SaveAttributes.
func (r Repo) UpdateSubProcess(ctx context.Context, sp domain.SubProcess) error {
	res, err := r.q().ExecContext(ctx, `UPDATE sub_processes SET name=?, seq=?, depends_on=?, updated_at=? WHERE id=?`,
		sp.Name, sp.Seq, nullableStringPtr(sp.DependsOn), sp.UpdatedAt, sp.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// SaveAttributes replaces the whole attribute map of a sub-process.
func (r Repo) SaveAttributes(ctx context.Context, id string, m attr.Map, updatedAt string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	res, err := r.q().ExecContext(ctx, `UPDATE sub_processes SET attributes_json=?, updated_at=? WHERE id=?`, string(data), updatedAt, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteSubProcess(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM sub_processes WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ListAttributeKeySets returns the attribute names used by every
// sub-process in the dataset, one set per sub-process.
func (r Repo) ListAttributeKeySets(ctx context.Context) ([][]string, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT attributes_json FROM sub_processes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		keys, err := attr.KeySet([]byte(raw))
		if err != nil {
			return nil, err
		}
		res = append(res, keys)
	}
	return res, rows.Err()
}

func scanSubProcess(s scanner) (domain.SubProcess, error) {
	var sp domain.SubProcess
	var dep sql.NullString
	var raw string
	if err := s.Scan(&sp.ID, &sp.ProcessID, &sp.Name, &sp.Seq, &dep, &raw, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return sp, err
	}
	if dep.Valid {
		sp.DependsOn = &dep.String
	}
	m, err := attr.DecodeMap([]byte(raw))
	if err != nil {
		return sp, fmt.Errorf("sub-process %s: %w", sp.ID, err)
	}
	sp.Attributes = m
	return sp, nil
}
