package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"processmap/internal/attr"
	"processmap/internal/db"
	"processmap/internal/domain"
	"processmap/internal/migrate"
	"processmap/internal/registry"
	"processmap/internal/repo"
)

const ts = "2024-01-01T00:00:00Z"

func setup(t *testing.T) (*registry.Registry, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	r := repo.Repo{DB: conn}
	reg := registry.New(r, zaptest.NewLogger(t))
	reg.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	return reg, r
}

func names(items []domain.AttributeName) []string {
	var out []string
	for _, n := range items {
		out = append(out, n.Name)
	}
	return out
}

func TestLookupMatchesSubstringIgnoringCase(t *testing.T) {
	reg, _ := setup(t)
	ctx := context.Background()
	for _, n := range []string{"role", "Roles", "owner", "description"} {
		require.NoError(t, reg.Register(ctx, n, attr.KindString))
	}

	got, err := reg.Lookup(ctx, "RO", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Roles", "role"}, names(got))

	got, err = reg.Lookup(ctx, "ro", "role")
	require.NoError(t, err)
	assert.Equal(t, []string{"Roles"}, names(got))

	got, err = reg.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestRegisterIsIdempotentPerType(t *testing.T) {
	reg, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, "role", attr.KindArray))
	require.NoError(t, reg.Register(ctx, "role", attr.KindArray))
	require.NoError(t, reg.Register(ctx, "role", attr.KindString))
	require.NoError(t, reg.Register(ctx, "  ", attr.KindString))
	assert.ErrorIs(t, reg.Register(ctx, "x", attr.Kind("date")), attr.ErrInvalidKind)

	got, err := reg.Lookup(ctx, "role", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, attr.KindArray, got[0].Type)
	assert.Equal(t, attr.KindString, got[1].Type)
}

func TestPruneIfUnused(t *testing.T) {
	reg, r := setup(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_A", Name: "A", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertSubProcess(ctx, domain.SubProcess{
		ID: "SP_1", ProcessID: "PT_A", Name: "one", Seq: 1,
		Attributes: attr.NewMap(attr.Entry{Name: "role", Value: attr.String("RO")}),
		CreatedAt:  ts, UpdatedAt: ts,
	}))
	require.NoError(t, reg.Register(ctx, "role", attr.KindString))
	require.NoError(t, reg.Register(ctx, "owner", attr.KindString))

	pruned, err := reg.PruneIfUnused(ctx, "role")
	require.NoError(t, err)
	assert.False(t, pruned)

	pruned, err = reg.PruneIfUnused(ctx, "owner")
	require.NoError(t, err)
	assert.True(t, pruned)

	pruned, err = reg.PruneIfUnused(ctx, "owner")
	require.NoError(t, err)
	assert.False(t, pruned)

	got, err := reg.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"role"}, names(got))
}

// gatedStore holds the result of the first usage scan until release is
// closed, so the caller sees what the dataset held when the scan ran.
type gatedStore struct {
	registry.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) ListAttributeKeySets(ctx context.Context) ([][]string, error) {
	sets, err := s.Store.ListAttributeKeySets(ctx)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return sets, err
}

func TestPruneJoiningStaleScanRescans(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_A", Name: "A", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertSubProcess(ctx, domain.SubProcess{
		ID: "SP_1", ProcessID: "PT_A", Name: "one", Seq: 1,
		Attributes: attr.NewMap(attr.Entry{Name: "role", Value: attr.String("RO")}),
		CreatedAt:  ts, UpdatedAt: ts,
	}))
	store := &gatedStore{Store: r, entered: make(chan struct{}), release: make(chan struct{})}
	reg := registry.New(store, zaptest.NewLogger(t))
	require.NoError(t, reg.Register(ctx, "role", attr.KindString))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = reg.PruneIfUnused(ctx, "role")
	}()
	<-store.entered

	// the last user goes away while the first scan is still reading
	require.NoError(t, r.DeleteSubProcess(ctx, "SP_1"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = reg.PruneIfUnused(ctx, "role")
	}()
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.False(t, results[0])
	assert.True(t, results[1])
	got, err := reg.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSweep(t *testing.T) {
	reg, r := setup(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_A", Name: "A", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertSubProcess(ctx, domain.SubProcess{
		ID: "SP_1", ProcessID: "PT_A", Name: "one", Seq: 1,
		Attributes: attr.NewMap(attr.Entry{Name: "role", Value: attr.String("RO")}),
		CreatedAt:  ts, UpdatedAt: ts,
	}))
	for _, n := range []string{"role", "zeta", "alpha"} {
		require.NoError(t, reg.Register(ctx, n, attr.KindString))
	}
	require.NoError(t, reg.Register(ctx, "alpha", attr.KindNumber))

	unused, err := reg.Sweep(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, unused)
	left, err := reg.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, left, 4)

	unused, err = reg.Sweep(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, unused)
	left, err = reg.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"role"}, names(left))
}

type failingStore struct{ registry.Store }

func (failingStore) ListAttributeNames(context.Context) ([]domain.AttributeName, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) ListAttributeKeySets(context.Context) ([][]string, error) {
	return nil, errors.New("disk on fire")
}

func TestLookupFailureIsWrapped(t *testing.T) {
	reg := registry.New(failingStore{}, nil)
	_, err := reg.Lookup(context.Background(), "x", "")
	assert.ErrorIs(t, err, registry.ErrLookup)
	_, err = reg.PruneIfUnused(context.Background(), "x")
	assert.ErrorIs(t, err, registry.ErrLookup)
}
