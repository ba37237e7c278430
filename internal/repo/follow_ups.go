package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"processmap/internal/domain"
)

type FollowUpFilter struct {
	ProcessID    string
	SubProcessID string
	AttributeKey string
	Status       domain.FollowUpStatus
}

const followUpColumns = `id,process_id,sub_process_id,attribute_key,question,status,COALESCE(created_by,''),created_at,updated_at`

func (r Repo) InsertFollowUp(ctx context.Context, f domain.FollowUp) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO follow_ups(id,process_id,sub_process_id,attribute_key,question,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ProcessID, f.SubProcessID, f.AttributeKey, f.Question, string(f.Status), nullable(f.CreatedBy), f.CreatedAt, f.UpdatedAt)
	return err
}

// UpdateFollowUp writes question, status, attribute key and updated_at.
func (r Repo) UpdateFollowUp(ctx context.Context, f domain.FollowUp) error {
	res, err := r.q().ExecContext(ctx, `UPDATE follow_ups SET attribute_key=?, question=?, status=?, updated_at=? WHERE id=?`,
		f.AttributeKey, f.Question, string(f.Status), f.UpdatedAt, f.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) GetFollowUp(ctx context.Context, id string) (domain.FollowUp, error) {
	row := r.q().QueryRowContext(ctx, `SELECT `+followUpColumns+` FROM follow_ups WHERE id=?`, id)
	f, err := scanFollowUp(row)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListFollowUps(ctx context.Context, filter FollowUpFilter) ([]domain.FollowUp, error) {
	clauses := []string{"1=1"}
	var args []any
	if filter.ProcessID != "" {
		clauses = append(clauses, "process_id=?")
		args = append(args, filter.ProcessID)
	}
	if filter.SubProcessID != "" {
		clauses = append(clauses, "sub_process_id=?")
		args = append(args, filter.SubProcessID)
	}
	if filter.AttributeKey != "" {
		clauses = append(clauses, "attribute_key=?")
		args = append(args, filter.AttributeKey)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(filter.Status))
	}
	query := fmt.Sprintf(`SELECT %s FROM follow_ups WHERE %s ORDER BY created_at, id`, followUpColumns, strings.Join(clauses, " AND "))
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) DeleteFollowUp(ctx context.Context, id string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM follow_ups WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteFollowUpsForSubProcess removes every follow-up of a sub-process.
// An empty key matches all attributes.
func (r Repo) DeleteFollowUpsForSubProcess(ctx context.Context, subProcessID, attributeKey string) (int64, error) {
	query := `DELETE FROM follow_ups WHERE sub_process_id=?`
	args := []any{subProcessID}
	if attributeKey != "" {
		query += ` AND attribute_key=?`
		args = append(args, attributeKey)
	}
	res, err := r.q().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanFollowUp(s scanner) (domain.FollowUp, error) {
	var f domain.FollowUp
	var status string
	err := s.Scan(&f.ID, &f.ProcessID, &f.SubProcessID, &f.AttributeKey, &f.Question, &status, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	f.Status = domain.FollowUpStatus(status)
	return f, err
}
