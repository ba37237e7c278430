package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"processmap/internal/attr"
	"processmap/internal/domain"
	"processmap/internal/editor"
	"processmap/internal/events"
	"processmap/internal/followup"
)

// SaveAttributes replaces the whole attribute map of a sub-process. There
// is no merge: concurrent saves are last writer wins.
func (e Engine) SaveAttributes(ctx context.Context, subProcessID string, m attr.Map, actorID string) (domain.SubProcess, error) {
	return e.saveAttributes(ctx, subProcessID, m, actorID, "attributes.saved", events.EventPayload{"keys": m.Keys()})
}

func (e Engine) saveAttributes(ctx context.Context, subProcessID string, m attr.Map, actorID, evtType string, payload events.EventPayload) (domain.SubProcess, error) {
	if actorID == "" {
		return domain.SubProcess{}, fmt.Errorf("%w: actor id required", ErrInvalidInput)
	}
	if err := checkKeys(m); err != nil {
		return domain.SubProcess{}, err
	}
	var sp domain.SubProcess
	err := e.tx(ctx, func(tx *sql.Tx, pub *publisher) error {
		r := e.Repo.WithTx(tx)
		var err error
		sp, err = r.GetSubProcess(ctx, subProcessID)
		if err != nil {
			return err
		}
		sp.Attributes = m.Clone()
		sp.UpdatedAt = e.stamp()
		if err := r.SaveAttributes(ctx, sp.ID, sp.Attributes, sp.UpdatedAt); err != nil {
			return err
		}
		return e.record(ctx, tx, pub, evtType, sp.ProcessID, sp.ID, "attribute", sp.ID, actorID, payload)
	})
	return sp, err
}

// checkKeys rejects blank attribute names and names with surrounding
// whitespace. The editor trims names itself; whole maps arrive untrimmed.
func checkKeys(m attr.Map) error {
	for _, k := range m.Keys() {
		if k == "" || strings.TrimSpace(k) != k {
			return fmt.Errorf("%w: %q", ErrEmptyName, k)
		}
	}
	return nil
}

// ReplaceAttributes saves m as the complete attribute map and reconciles
// the side data: new names are registered, follow-ups of attributes that
// no longer exist are dropped and removed names are pruned when unused.
func (e Engine) ReplaceAttributes(ctx context.Context, subProcessID string, m attr.Map, actorID string) (domain.SubProcess, error) {
	before, err := e.Repo.GetSubProcess(ctx, subProcessID)
	if err != nil {
		return domain.SubProcess{}, err
	}
	sp, err := e.SaveAttributes(ctx, subProcessID, m, actorID)
	if err != nil {
		return sp, err
	}
	e.registerAll(ctx, m)
	var removed []string
	for _, k := range before.Attributes.Keys() {
		if !m.Has(k) {
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		e.background("drop follow-ups", func(ctx context.Context) error {
			return e.dropOrphanFollowUps(ctx, sp.ID, "", actorID)
		})
		e.pruneNames(removed...)
	}
	return sp, nil
}

// EditAttributeOptions drives one add or edit through the editor. An empty
// OriginalKey adds a new attribute.
type EditAttributeOptions struct {
	SubProcessID string `validate:"required"`
	OriginalKey  string
	Draft        editor.Draft
	ActorID      string `validate:"required"`
}

// EditAttribute applies a draft to the stored map. Validation errors leave
// the stored map untouched. Renames reassign the attribute's follow-ups
// and prune the old name in the background.
func (e Engine) EditAttribute(ctx context.Context, opts EditAttributeOptions) (domain.SubProcess, editor.Result, error) {
	if err := check(opts); err != nil {
		return domain.SubProcess{}, editor.Result{}, err
	}
	sp, err := e.Repo.GetSubProcess(ctx, opts.SubProcessID)
	if err != nil {
		return sp, editor.Result{}, err
	}

	key := strings.TrimSpace(opts.Draft.Key)
	evtType := "attribute.updated"
	payload := events.EventPayload{"attribute": key, "type": opts.Draft.Kind}
	switch {
	case opts.OriginalKey == "":
		evtType = "attribute.added"
	case opts.OriginalKey != key:
		evtType = "attribute.renamed"
		payload["old_attribute"] = opts.OriginalKey
	}

	var saved domain.SubProcess
	ed := editor.New(sp.Attributes, e.editorOptions(sp, opts.ActorID, func(ctx context.Context, m attr.Map) error {
		var err error
		saved, err = e.saveAttributes(ctx, sp.ID, m, opts.ActorID, evtType, payload)
		return err
	}))
	if opts.OriginalKey == "" {
		ed.StartNew()
	} else if err := ed.StartEdit(opts.OriginalKey); err != nil {
		return sp, editor.Result{}, err
	}
	if err := ed.SetDraft(opts.Draft); err != nil {
		return sp, editor.Result{}, err
	}
	res, err := ed.Confirm(ctx)
	sp.Attributes = ed.Attributes()
	if saved.ID != "" {
		sp.UpdatedAt = saved.UpdatedAt
	}
	return sp, res, err
}

// DeleteAttribute removes key from the stored map. The attribute's
// follow-ups are dropped and its name pruned in the background.
func (e Engine) DeleteAttribute(ctx context.Context, subProcessID, key, actorID string) (domain.SubProcess, error) {
	sp, err := e.Repo.GetSubProcess(ctx, subProcessID)
	if err != nil {
		return sp, err
	}
	var saved domain.SubProcess
	ed := editor.New(sp.Attributes, e.editorOptions(sp, actorID, func(ctx context.Context, m attr.Map) error {
		var err error
		saved, err = e.saveAttributes(ctx, sp.ID, m, actorID, "attribute.deleted", events.EventPayload{"attribute": key})
		return err
	}))
	err = ed.Delete(ctx, key)
	sp.Attributes = ed.Attributes()
	if saved.ID != "" {
		sp.UpdatedAt = saved.UpdatedAt
	}
	return sp, err
}

// AttributeForm returns the editor form for key, or a blank form when key
// is empty.
func (e Engine) AttributeForm(ctx context.Context, subProcessID, key string) (editor.Draft, error) {
	sp, err := e.Repo.GetSubProcess(ctx, subProcessID)
	if err != nil {
		return editor.Draft{}, err
	}
	ed := editor.New(sp.Attributes, editor.Options{})
	if key == "" {
		ed.StartNew()
	} else if err := ed.StartEdit(key); err != nil {
		return editor.Draft{}, err
	}
	return ed.Draft(), nil
}

func (e Engine) editorOptions(sp domain.SubProcess, actorID string, persist editor.PersistFunc) editor.Options {
	logger := e.log().With(zap.String("sub_process_id", sp.ID), zap.String("actor_id", actorID))
	opts := editor.Options{
		Persist: persist,
		Logger:  logger,
		Hooks: editor.Hooks{
			AttributeRemoved: func(key string) {
				e.background("attribute removed", func(ctx context.Context) error {
					if err := e.dropOrphanFollowUps(ctx, sp.ID, key, actorID); err != nil {
						return fmt.Errorf("drop follow-ups of %q: %w", key, err)
					}
					return nil
				})
				e.pruneNames(key)
			},
			AttributeRenamed: func(oldKey, newKey string) {
				e.background("attribute renamed", func(ctx context.Context) error {
					ref := followup.Ref{ProcessID: sp.ProcessID, SubProcessID: sp.ID, AttributeKey: oldKey}
					return e.reassignFollowUps(ctx, ref, newKey, actorID)
				})
				e.pruneNames(oldKey)
			},
		},
	}
	if e.Names != nil {
		opts.Registrar = e.Names
	}
	return opts
}
