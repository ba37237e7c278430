package editor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/attr"
	"processmap/internal/editor"
)

type recorder struct {
	saved      []attr.Map
	registered []string
	removed    []string
	renamed    [][2]string
	notified   []error
	saveErr    error
}

func (r *recorder) Register(_ context.Context, name string, kind attr.Kind) error {
	r.registered = append(r.registered, name+":"+string(kind))
	return nil
}

func (r *recorder) options() editor.Options {
	return editor.Options{
		Registrar: r,
		Persist: func(_ context.Context, m attr.Map) error {
			r.saved = append(r.saved, m)
			return r.saveErr
		},
		Notify: func(err error) { r.notified = append(r.notified, err) },
		Hooks: editor.Hooks{
			AttributeRemoved: func(key string) { r.removed = append(r.removed, key) },
			AttributeRenamed: func(o, n string) { r.renamed = append(r.renamed, [2]string{o, n}) },
		},
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestAddArrayAttribute(t *testing.T) {
	rec := &recorder{}
	ed := editor.New(attr.NewMap(), rec.options())
	ed.StartNew()
	assert.Equal(t, editor.ComposingNew, ed.State())
	assert.Equal(t, attr.KindString, ed.Draft().Kind)

	require.NoError(t, ed.SetDraft(editor.Draft{Key: " role ", Kind: attr.KindArray, Value: "RO, Nurse"}))
	res, err := ed.Confirm(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, editor.Idle, ed.State())

	require.Len(t, rec.saved, 1)
	assert.JSONEq(t, `{"role":{"type":"array","value":["RO","Nurse"]}}`, mustJSON(t, rec.saved[0]))
	assert.Equal(t, []string{"role:array"}, rec.registered)
}

func TestAddObjectThenDuplicateRejected(t *testing.T) {
	rec := &recorder{}
	ed := editor.New(attr.NewMap(), rec.options())
	ed.StartNew()
	require.NoError(t, ed.SetDraft(editor.Draft{
		Key:  "detail",
		Kind: attr.KindObject,
		Rows: []attr.Row{{Key: "priority", Kind: attr.KindNumber, Value: "3"}},
	}))
	_, err := ed.Confirm(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"detail":{"type":"object","value":{"priority":3}}}`, mustJSON(t, rec.saved[0]))

	ed.StartNew()
	draft := editor.Draft{Key: "detail", Kind: attr.KindString, Value: "x"}
	require.NoError(t, ed.SetDraft(draft))
	_, err = ed.Confirm(context.Background())
	assert.ErrorIs(t, err, editor.ErrDuplicateName)
	assert.Equal(t, editor.ComposingNew, ed.State())
	assert.Equal(t, draft, ed.Draft())
	assert.Len(t, rec.saved, 1)
}

func TestRenameIsCaseSensitive(t *testing.T) {
	rec := &recorder{}
	start := attr.NewMap(
		attr.Entry{Name: "a", Value: attr.String("1")},
		attr.Entry{Name: "b", Value: attr.String("2")},
	)
	ed := editor.New(start, rec.options())

	require.NoError(t, ed.StartEdit("b"))
	d := ed.Draft()
	d.Key = "a"
	require.NoError(t, ed.SetDraft(d))
	_, err := ed.Confirm(context.Background())
	assert.ErrorIs(t, err, editor.ErrDuplicateName)

	d.Key = "A"
	require.NoError(t, ed.SetDraft(d))
	res, err := ed.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", res.Renamed)
	assert.Equal(t, []string{"a", "A"}, ed.Attributes().Keys())
	assert.Equal(t, [][2]string{{"b", "A"}}, rec.renamed)
}

func TestEditSameKeyKeepsPosition(t *testing.T) {
	rec := &recorder{}
	ed := editor.New(attr.NewMap(
		attr.Entry{Name: "count", Value: attr.Number(1)},
		attr.Entry{Name: "done", Value: attr.Bool(false)},
	), rec.options())
	require.NoError(t, ed.StartEdit("count"))
	assert.Equal(t, editor.Draft{Key: "count", Kind: attr.KindNumber, Value: "1"}, ed.Draft())
	d := ed.Draft()
	d.Value = "2.5"
	require.NoError(t, ed.SetDraft(d))
	_, err := ed.Confirm(context.Background())
	require.NoError(t, err)
	got, _ := ed.Attributes().Get("count")
	assert.Equal(t, attr.Number(2.5), got)
	assert.Equal(t, []string{"count", "done"}, ed.Attributes().Keys())
	assert.Empty(t, rec.renamed)
}

func TestValidationLeavesStateUntouched(t *testing.T) {
	rec := &recorder{}
	ed := editor.New(attr.NewMap(), rec.options())

	_, err := ed.Confirm(context.Background())
	assert.ErrorIs(t, err, editor.ErrNotComposing)

	ed.StartNew()
	require.NoError(t, ed.SetDraft(editor.Draft{Key: "   ", Kind: attr.KindString}))
	_, err = ed.Confirm(context.Background())
	assert.ErrorIs(t, err, editor.ErrEmptyName)

	require.NoError(t, ed.SetDraft(editor.Draft{Key: "n", Kind: attr.KindNumber, Value: "abc"}))
	_, err = ed.Confirm(context.Background())
	assert.ErrorIs(t, err, attr.ErrInvalidNumber)
	assert.Equal(t, editor.ComposingNew, ed.State())
	assert.Equal(t, 0, ed.Attributes().Len())
	assert.Empty(t, rec.saved)
	assert.Empty(t, rec.registered)

	ed.Cancel()
	assert.Equal(t, editor.Idle, ed.State())
	assert.ErrorIs(t, ed.SetDraft(editor.Draft{}), editor.ErrNotComposing)
	assert.ErrorIs(t, ed.StartEdit("missing"), editor.ErrUnknownAttribute)
}

func TestPersistenceFailureIsNotRolledBack(t *testing.T) {
	rec := &recorder{saveErr: errors.New("backend unavailable")}
	ed := editor.New(attr.NewMap(), rec.options())
	ed.StartNew()
	require.NoError(t, ed.SetDraft(editor.Draft{Key: "done", Kind: attr.KindBoolean, Value: "true"}))
	_, err := ed.Confirm(context.Background())
	assert.ErrorIs(t, err, editor.ErrPersistenceFailure)
	require.Len(t, rec.notified, 1)
	assert.ErrorIs(t, rec.notified[0], editor.ErrPersistenceFailure)

	assert.Equal(t, editor.Idle, ed.State())
	got, ok := ed.Attributes().Get("done")
	require.True(t, ok)
	assert.Equal(t, attr.Bool(true), got)
}

func TestDeleteRunsRemovedHookAfterSave(t *testing.T) {
	rec := &recorder{}
	ed := editor.New(attr.NewMap(
		attr.Entry{Name: "role", Value: attr.Strings("RO")},
		attr.Entry{Name: "owner", Value: attr.String("CT")},
	), rec.options())
	require.NoError(t, ed.Delete(context.Background(), "role"))
	assert.Equal(t, []string{"role"}, rec.removed)
	require.Len(t, rec.saved, 1)
	assert.Equal(t, []string{"owner"}, rec.saved[0].Keys())

	assert.ErrorIs(t, ed.Delete(context.Background(), "role"), editor.ErrUnknownAttribute)

	rec.saveErr = errors.New("down")
	err := ed.Delete(context.Background(), "owner")
	assert.ErrorIs(t, err, editor.ErrPersistenceFailure)
	assert.Equal(t, []string{"role"}, rec.removed)
	assert.Equal(t, 0, ed.Attributes().Len())
}
