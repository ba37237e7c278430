// Package followup tracks open questions attached to individual
// attributes of a sub-process.
package followup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"processmap/internal/domain"
	"processmap/internal/repo"
)

var ErrEmptyQuestion = errors.New("question is required")

// Ref addresses one attribute of one sub-process.
type Ref struct {
	ProcessID    string
	SubProcessID string
	AttributeKey string
}

// Store is the persistence the workflow needs. repo.Repo satisfies it.
type Store interface {
	InsertFollowUp(ctx context.Context, f domain.FollowUp) error
	UpdateFollowUp(ctx context.Context, f domain.FollowUp) error
	GetFollowUp(ctx context.Context, id string) (domain.FollowUp, error)
	ListFollowUps(ctx context.Context, filter repo.FollowUpFilter) ([]domain.FollowUp, error)
	DeleteFollowUp(ctx context.Context, id string) error
}

type Workflow struct {
	Store Store
	Now   func() time.Time
	NewID func() string
}

func New(store Store) Workflow {
	return Workflow{Store: store}
}

func (w Workflow) now() string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (w Workflow) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return "FU_" + uuid.NewString()
}

// Ask opens a question on ref. When an open thread already exists for the
// same attribute its question is replaced instead. created reports whether
// a new record was stored.
func (w Workflow) Ask(ctx context.Context, ref Ref, question, actorID string) (f domain.FollowUp, created bool, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return f, false, ErrEmptyQuestion
	}
	open, err := w.Store.ListFollowUps(ctx, repo.FollowUpFilter{
		ProcessID:    ref.ProcessID,
		SubProcessID: ref.SubProcessID,
		AttributeKey: ref.AttributeKey,
		Status:       domain.FollowUpOpen,
	})
	if err != nil {
		return f, false, err
	}
	now := w.now()
	if len(open) > 0 {
		f = open[0]
		f.Question = question
		f.UpdatedAt = now
		if err := w.Store.UpdateFollowUp(ctx, f); err != nil {
			return f, false, err
		}
		return f, false, nil
	}
	f = domain.FollowUp{
		ID:           w.newID(),
		ProcessID:    ref.ProcessID,
		SubProcessID: ref.SubProcessID,
		AttributeKey: ref.AttributeKey,
		Question:     question,
		Status:       domain.FollowUpOpen,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := w.Store.InsertFollowUp(ctx, f); err != nil {
		return f, false, err
	}
	return f, true, nil
}

// Resolve closes an open follow-up. Resolving twice is a no-op; changed
// is false in that case.
func (w Workflow) Resolve(ctx context.Context, id string) (f domain.FollowUp, changed bool, err error) {
	f, err = w.Store.GetFollowUp(ctx, id)
	if err != nil {
		return f, false, err
	}
	if f.Status == domain.FollowUpResolved {
		return f, false, nil
	}
	f.Status = domain.FollowUpResolved
	f.UpdatedAt = w.now()
	if err := w.Store.UpdateFollowUp(ctx, f); err != nil {
		return f, false, err
	}
	return f, true, nil
}

func (w Workflow) Delete(ctx context.Context, id string) (domain.FollowUp, error) {
	f, err := w.Store.GetFollowUp(ctx, id)
	if err != nil {
		return f, err
	}
	return f, w.Store.DeleteFollowUp(ctx, id)
}

// List returns the follow-ups of a process, optionally narrowed to one
// sub-process, oldest first.
func (w Workflow) List(ctx context.Context, processID, subProcessID string) ([]domain.FollowUp, error) {
	return w.Store.ListFollowUps(ctx, repo.FollowUpFilter{ProcessID: processID, SubProcessID: subProcessID})
}

// OpenCounts groups the open follow-ups of a process by sub-process id.
// Sub-processes without open questions are absent from the result.
func (w Workflow) OpenCounts(ctx context.Context, processID string) (map[string]int, error) {
	open, err := w.Store.ListFollowUps(ctx, repo.FollowUpFilter{ProcessID: processID, Status: domain.FollowUpOpen})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, f := range open {
		counts[f.SubProcessID]++
	}
	return counts, nil
}

// Reassign moves every follow-up of ref to newKey after an attribute rename.
func (w Workflow) Reassign(ctx context.Context, ref Ref, newKey string) ([]domain.FollowUp, error) {
	if ref.AttributeKey == newKey {
		return nil, nil
	}
	items, err := w.Store.ListFollowUps(ctx, repo.FollowUpFilter{
		ProcessID:    ref.ProcessID,
		SubProcessID: ref.SubProcessID,
		AttributeKey: ref.AttributeKey,
	})
	if err != nil {
		return nil, err
	}
	now := w.now()
	for i := range items {
		items[i].AttributeKey = newKey
		items[i].UpdatedAt = now
		if err := w.Store.UpdateFollowUp(ctx, items[i]); err != nil {
			return nil, fmt.Errorf("reassign follow-up %s: %w", items[i].ID, err)
		}
	}
	return items, nil
}

// DropAttribute deletes every follow-up of ref, returning the records
// removed ordered by id.
func (w Workflow) DropAttribute(ctx context.Context, ref Ref) ([]domain.FollowUp, error) {
	items, err := w.Store.ListFollowUps(ctx, repo.FollowUpFilter{
		ProcessID:    ref.ProcessID,
		SubProcessID: ref.SubProcessID,
		AttributeKey: ref.AttributeKey,
	})
	if err != nil {
		return nil, err
	}
	return w.drop(ctx, items)
}

// DropMissing deletes the follow-ups of a sub-process whose attribute is
// not among keys, returning the records removed ordered by id.
func (w Workflow) DropMissing(ctx context.Context, processID, subProcessID string, keys []string) ([]domain.FollowUp, error) {
	keep := make(map[string]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	items, err := w.Store.ListFollowUps(ctx, repo.FollowUpFilter{ProcessID: processID, SubProcessID: subProcessID})
	if err != nil {
		return nil, err
	}
	var missing []domain.FollowUp
	for _, f := range items {
		if !keep[f.AttributeKey] {
			missing = append(missing, f)
		}
	}
	return w.drop(ctx, missing)
}

func (w Workflow) drop(ctx context.Context, items []domain.FollowUp) ([]domain.FollowUp, error) {
	var dropped []domain.FollowUp
	for _, f := range items {
		if err := w.Store.DeleteFollowUp(ctx, f.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return dropped, fmt.Errorf("drop follow-up %s: %w", f.ID, err)
		}
		dropped = append(dropped, f)
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].ID < dropped[j].ID })
	return dropped, nil
}
