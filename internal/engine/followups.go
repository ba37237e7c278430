package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"processmap/internal/domain"
	"processmap/internal/editor"
	"processmap/internal/events"
	"processmap/internal/followup"
	"processmap/internal/repo"
)

func (e Engine) followUps() followup.Workflow {
	w := followup.New(e.Repo)
	w.Now = e.now
	return w
}

type AskOptions struct {
	ProcessID    string `validate:"required"`
	SubProcessID string `validate:"required"`
	AttributeKey string `validate:"required"`
	Question     string
	ActorID      string `validate:"required"`
}

// AskFollowUp opens a question on an existing attribute, or replaces the
// question of the thread already open there.
func (e Engine) AskFollowUp(ctx context.Context, opts AskOptions) (domain.FollowUp, error) {
	if err := check(opts); err != nil {
		return domain.FollowUp{}, err
	}
	var f domain.FollowUp
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		sp, err := r.GetSubProcess(ctx, opts.SubProcessID)
		if err != nil {
			return err
		}
		if sp.ProcessID != opts.ProcessID {
			return fmt.Errorf("%w: sub-process %s is not part of process %s", ErrInvalidInput, opts.SubProcessID, opts.ProcessID)
		}
		if !sp.Attributes.Has(opts.AttributeKey) {
			return fmt.Errorf("%w: %s", editor.ErrUnknownAttribute, opts.AttributeKey)
		}
		w := e.followUps()
		w.Store = r
		var created bool
		f, created, err = w.Ask(ctx, followup.Ref{
			ProcessID:    opts.ProcessID,
			SubProcessID: opts.SubProcessID,
			AttributeKey: opts.AttributeKey,
		}, opts.Question, opts.ActorID)
		if err != nil {
			return err
		}
		evtType := "follow_up.updated"
		if created {
			evtType = "follow_up.opened"
		}
		return e.record(ctx, tx, pub, evtType, f.ProcessID, f.SubProcessID, "follow_up", f.ID, opts.ActorID, events.EventPayload{
			"attribute": f.AttributeKey,
		})
	})
	return f, err
}

// ResolveFollowUp marks a follow-up resolved. Resolving twice changes
// nothing and records no event.
func (e Engine) ResolveFollowUp(ctx context.Context, id, actorID string) (domain.FollowUp, error) {
	var f domain.FollowUp
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		w := e.followUps()
		w.Store = e.Repo.WithTx(tx)
		var changed bool
		var err error
		f, changed, err = w.Resolve(ctx, id)
		if err != nil || !changed {
			return err
		}
		return e.record(ctx, tx, pub, "follow_up.resolved", f.ProcessID, f.SubProcessID, "follow_up", f.ID, actorID, events.EventPayload{
			"attribute": f.AttributeKey,
		})
	})
	return f, err
}

func (e Engine) DeleteFollowUp(ctx context.Context, id, actorID string) error {
	return e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		w := e.followUps()
		w.Store = e.Repo.WithTx(tx)
		f, err := w.Delete(ctx, id)
		if err != nil {
			return err
		}
		return e.record(ctx, tx, pub, "follow_up.deleted", f.ProcessID, f.SubProcessID, "follow_up", f.ID, actorID, events.EventPayload{
			"attribute": f.AttributeKey,
		})
	})
}

// reassignFollowUps moves the follow-ups of a renamed attribute to its new
// name, recording one event per moved thread.
func (e Engine) reassignFollowUps(ctx context.Context, ref followup.Ref, newKey, actorID string) error {
	return e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		w := e.followUps()
		w.Store = e.Repo.WithTx(tx)
		moved, err := w.Reassign(ctx, ref, newKey)
		if err != nil {
			return err
		}
		for _, f := range moved {
			if err := e.record(ctx, tx, pub, "follow_up.reassigned", f.ProcessID, f.SubProcessID, "follow_up", f.ID, actorID, events.EventPayload{
				"attribute":     f.AttributeKey,
				"old_attribute": ref.AttributeKey,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// dropOrphanFollowUps deletes follow-ups whose attribute is gone from the
// stored map, recording one event per dropped thread. A non-empty key
// limits the drop to that attribute.
func (e Engine) dropOrphanFollowUps(ctx context.Context, subProcessID, key, actorID string) error {
	return e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		sp, err := r.GetSubProcess(ctx, subProcessID)
		if errors.Is(err, repo.ErrNotFound) {
			// deleting the sub-process already took its follow-ups
			return nil
		}
		if err != nil {
			return err
		}
		w := e.followUps()
		w.Store = r
		var dropped []domain.FollowUp
		switch {
		case key == "":
			dropped, err = w.DropMissing(ctx, sp.ProcessID, sp.ID, sp.Attributes.Keys())
		case !sp.Attributes.Has(key):
			dropped, err = w.DropAttribute(ctx, followup.Ref{ProcessID: sp.ProcessID, SubProcessID: sp.ID, AttributeKey: key})
		}
		if err != nil {
			return err
		}
		for _, f := range dropped {
			if err := e.record(ctx, tx, pub, "follow_up.deleted", f.ProcessID, f.SubProcessID, "follow_up", f.ID, actorID, events.EventPayload{
				"attribute": f.AttributeKey,
				"reason":    "attribute_removed",
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e Engine) ListFollowUps(ctx context.Context, processID, subProcessID string) ([]domain.FollowUp, error) {
	if _, err := e.Repo.GetProcessTitle(ctx, processID); err != nil {
		return nil, err
	}
	return e.followUps().List(ctx, processID, subProcessID)
}

// OpenFollowUpCounts returns the number of open follow-ups per sub-process
// of a process.
func (e Engine) OpenFollowUpCounts(ctx context.Context, processID string) (map[string]int, error) {
	if _, err := e.Repo.GetProcessTitle(ctx, processID); err != nil {
		return nil, err
	}
	return e.followUps().OpenCounts(ctx, processID)
}
