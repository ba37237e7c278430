// Package editor holds the add/edit state machine over one sub-process's
// attribute map.
//
// The editor is local-first: Confirm updates the in-memory map before the
// persistence callback runs, and a failed save is reported but never
// rolled back.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"processmap/internal/attr"
)

var (
	ErrEmptyName          = errors.New("attribute name is required")
	ErrDuplicateName      = errors.New("attribute name already exists")
	ErrUnknownAttribute   = errors.New("attribute does not exist")
	ErrNotComposing       = errors.New("editor is idle")
	ErrPersistenceFailure = errors.New("persistence failure")
)

type State int

const (
	Idle State = iota
	ComposingNew
	ComposingEdit
)

func (s State) String() string {
	switch s {
	case ComposingNew:
		return "composing_new"
	case ComposingEdit:
		return "composing_edit"
	default:
		return "idle"
	}
}

// Draft is the form being composed.
type Draft struct {
	Key   string     `json:"key"`
	Kind  attr.Kind  `json:"type"`
	Value string     `json:"value,omitempty"`
	Rows  []attr.Row `json:"rows,omitempty"`
}

func blankDraft() Draft {
	return Draft{Kind: attr.KindString, Rows: []attr.Row{{Kind: attr.KindString}}}
}

// Registrar records attribute names for later suggestion.
type Registrar interface {
	Register(ctx context.Context, name string, kind attr.Kind) error
}

// PersistFunc saves the full attribute map.
type PersistFunc func(ctx context.Context, m attr.Map) error

// Hooks receive side effects after a successful save. Either may be nil.
type Hooks struct {
	AttributeRemoved func(key string)
	AttributeRenamed func(oldKey, newKey string)
}

type Options struct {
	Registrar Registrar
	Persist   PersistFunc
	// Notify is told about every persistence or registration failure.
	Notify func(error)
	Hooks  Hooks
	Logger *zap.Logger
}

type Editor struct {
	mu       sync.Mutex
	attrs    attr.Map
	state    State
	original string
	draft    Draft
	opts     Options
}

func New(m attr.Map, opts Options) *Editor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Editor{attrs: m.Clone(), opts: opts}
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Original is the key being edited in ComposingEdit.
func (e *Editor) Original() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.original
}

func (e *Editor) Draft() Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// SetDraft replaces the form contents while composing.
func (e *Editor) SetDraft(d Draft) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Idle {
		return ErrNotComposing
	}
	e.draft = d
	return nil
}

// Attributes returns a copy of the local map.
func (e *Editor) Attributes() attr.Map {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs.Clone()
}

func (e *Editor) StartNew() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = ComposingNew
	e.original = ""
	e.draft = blankDraft()
}

// StartEdit loads an existing attribute into the form.
func (e *Editor) StartEdit(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
	}
	kind, raw, rows := attr.Decompose(v)
	if kind == attr.KindObject && len(rows) == 0 {
		rows = []attr.Row{{Kind: attr.KindString}}
	}
	e.state = ComposingEdit
	e.original = key
	e.draft = Draft{Key: key, Kind: kind, Value: raw, Rows: rows}
	return nil
}

// Cancel discards the form.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Editor) reset() {
	e.state = Idle
	e.original = ""
	e.draft = Draft{}
}

// Result describes what a successful Confirm changed.
type Result struct {
	Key     string
	Value   attr.Value
	Renamed string
	Created bool
}

// Confirm validates the draft and applies it. Validation errors leave the
// editor composing with the draft intact. Once validation passes the local
// map is updated and the editor returns to Idle; a failure while
// registering or saving is returned wrapped in ErrPersistenceFailure.
func (e *Editor) Confirm(ctx context.Context) (Result, error) {
	e.mu.Lock()
	res, snapshot, err := e.apply()
	e.mu.Unlock()
	if err != nil {
		return res, err
	}

	var failures []error
	if e.opts.Registrar != nil {
		if err := e.opts.Registrar.Register(ctx, res.Key, res.Value.Kind); err != nil {
			failures = append(failures, fmt.Errorf("register %q: %w", res.Key, err))
		}
	}
	if e.opts.Persist != nil {
		if err := e.opts.Persist(ctx, snapshot); err != nil {
			failures = append(failures, fmt.Errorf("save attributes: %w", err))
		}
	}
	if len(failures) > 0 {
		return res, e.fail(res.Key, errors.Join(failures...))
	}
	if res.Renamed != "" && e.opts.Hooks.AttributeRenamed != nil {
		e.opts.Hooks.AttributeRenamed(res.Renamed, res.Key)
	}
	return res, nil
}

func (e *Editor) apply() (Result, attr.Map, error) {
	if e.state == Idle {
		return Result{}, attr.Map{}, ErrNotComposing
	}
	key := strings.TrimSpace(e.draft.Key)
	if key == "" {
		return Result{}, attr.Map{}, ErrEmptyName
	}
	if e.attrs.Has(key) && (e.state == ComposingNew || key != e.original) {
		return Result{}, attr.Map{}, fmt.Errorf("%w: %q", ErrDuplicateName, key)
	}
	kind := e.draft.Kind
	if kind == "" {
		kind = attr.KindString
	}
	v, err := attr.Build(kind, e.draft.Value, e.draft.Rows)
	if err != nil {
		var fe *attr.FieldError
		if errors.As(err, &fe) && fe.Key == "" {
			fe.Key = key
		}
		return Result{}, attr.Map{}, err
	}

	res := Result{Key: key, Value: v}
	switch {
	case e.state == ComposingNew:
		e.attrs.Set(key, v)
		res.Created = true
	case key != e.original:
		e.attrs.Replace(e.original, key, v)
		res.Renamed = e.original
	default:
		e.attrs.Set(key, v)
	}
	e.reset()
	return res, e.attrs.Clone(), nil
}

// Delete removes key and saves the map. The removed key is handed to
// Hooks.AttributeRemoved only after the save succeeded.
func (e *Editor) Delete(ctx context.Context, key string) error {
	e.mu.Lock()
	if !e.attrs.Delete(key) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
	}
	if e.state == ComposingEdit && e.original == key {
		e.reset()
	}
	snapshot := e.attrs.Clone()
	e.mu.Unlock()

	if e.opts.Persist != nil {
		if err := e.opts.Persist(ctx, snapshot); err != nil {
			return e.fail(key, fmt.Errorf("save attributes: %w", err))
		}
	}
	if e.opts.Hooks.AttributeRemoved != nil {
		e.opts.Hooks.AttributeRemoved(key)
	}
	return nil
}

func (e *Editor) fail(key string, err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	e.opts.Logger.Error("attribute change not saved", zap.String("attribute", key), zap.Error(err))
	if e.opts.Notify != nil {
		e.opts.Notify(wrapped)
	}
	return wrapped
}
