package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/attr"
	"processmap/internal/db"
	"processmap/internal/domain"
	"processmap/internal/migrate"
	"processmap/internal/repo"
)

const ts = "2024-01-01T00:00:00Z"

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}
}

func TestProcessTitleOrdering(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for _, p := range []domain.ProcessTitle{
		{ID: "PT_B", Name: "beta", Seq: 2},
		{ID: "PT_A", Name: "Alpha", Seq: 2},
		{ID: "PT_C", Name: "gamma", Seq: 1},
	} {
		p.CreatedAt, p.UpdatedAt = ts, ts
		require.NoError(t, r.InsertProcessTitle(ctx, p))
	}
	items, err := r.ListProcessTitles(ctx)
	require.NoError(t, err)
	var ids []string
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"PT_C", "PT_A", "PT_B"}, ids)

	_, err = r.GetProcessTitle(ctx, "PT_X")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.DeleteProcessTitle(ctx, "PT_X"), repo.ErrNotFound)
}

func TestSubProcessAttributesRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_BOOKING", Name: "Booking", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	sp := domain.SubProcess{
		ID: "SP_1", ProcessID: "PT_BOOKING", Name: "Consult", Seq: 1,
		Attributes: attr.NewMap(attr.Entry{Name: "role", Value: attr.Strings("RO")}),
		CreatedAt:  ts, UpdatedAt: ts,
	}
	require.NoError(t, r.InsertSubProcess(ctx, sp))

	m := sp.Attributes.Clone()
	m.Set("detail", attr.Object(attr.Field{Key: "priority", Value: attr.Number(3)}))
	require.NoError(t, r.SaveAttributes(ctx, "SP_1", m, ts))

	got, err := r.GetSubProcess(ctx, "SP_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"role", "detail"}, got.Attributes.Keys())
	detail, _ := got.Attributes.Get("detail")
	assert.Equal(t, attr.Number(3), detail.Fields[0].Value)

	sets, err := r.ListAttributeKeySets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.ElementsMatch(t, []string{"role", "detail"}, sets[0])
}

func TestDeletingProcessCascades(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_A", Name: "A", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertSubProcess(ctx, domain.SubProcess{ID: "SP_1", ProcessID: "PT_A", Name: "one", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertFollowUp(ctx, domain.FollowUp{
		ID: "F1", ProcessID: "PT_A", SubProcessID: "SP_1", AttributeKey: "role",
		Question: "who?", Status: domain.FollowUpOpen, CreatedAt: ts, UpdatedAt: ts,
	}))
	require.NoError(t, r.DeleteProcessTitle(ctx, "PT_A"))

	_, err := r.GetSubProcess(ctx, "SP_1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	items, err := r.ListFollowUps(ctx, repo.FollowUpFilter{ProcessID: "PT_A"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAttributeNamesCatalog(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.UpsertAttributeName(ctx, "role", attr.KindArray, ts))
	require.NoError(t, r.UpsertAttributeName(ctx, "role", attr.KindArray, ts))
	require.NoError(t, r.UpsertAttributeName(ctx, "role", attr.KindString, ts))
	names, err := r.ListAttributeNames(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 2)

	n, err := r.DeleteAttributeName(ctx, "role")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestAllowList(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.AllowUser(ctx, " Someone@Example.com ", "admin", ts))
	ok, err := r.IsUserAllowed(ctx, "someone@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.DenyUser(ctx, "SOMEONE@example.com"))
	ok, err = r.IsUserAllowed(ctx, "someone@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
