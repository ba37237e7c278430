package followup_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/db"
	"processmap/internal/domain"
	"processmap/internal/followup"
	"processmap/internal/migrate"
	"processmap/internal/repo"
)

const ts = "2024-01-01T00:00:00Z"

func newWorkflow(t *testing.T) followup.Workflow {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	r := repo.Repo{DB: conn}
	require.NoError(t, r.InsertProcessTitle(ctx, domain.ProcessTitle{ID: "PT_A", Name: "A", Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	for _, id := range []string{"SP_1", "SP_2"} {
		require.NoError(t, r.InsertSubProcess(ctx, domain.SubProcess{ID: id, ProcessID: "PT_A", Name: id, Seq: 1, CreatedAt: ts, UpdatedAt: ts}))
	}

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	w := followup.New(r)
	w.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	w.NewID = func() string {
		n++
		return fmt.Sprintf("FU_%d", n)
	}
	return w
}

var roleRef = followup.Ref{ProcessID: "PT_A", SubProcessID: "SP_1", AttributeKey: "role"}

func TestAskReplacesOpenQuestion(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	f, created, err := w.Ask(ctx, roleRef, "  who signs off? ", "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "who signs off?", f.Question)
	assert.Equal(t, domain.FollowUpOpen, f.Status)

	g, created, err := w.Ask(ctx, roleRef, "who signs off on weekends?", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.ID, g.ID)
	assert.Equal(t, "alice", g.CreatedBy)

	items, err := w.List(ctx, "PT_A", "SP_1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "who signs off on weekends?", items[0].Question)

	_, _, err = w.Ask(ctx, roleRef, " ", "alice")
	assert.ErrorIs(t, err, followup.ErrEmptyQuestion)
}

func TestResolveIsTerminalAndIdempotent(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	f, _, err := w.Ask(ctx, roleRef, "who?", "alice")
	require.NoError(t, err)

	r1, changed, err := w.Resolve(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.FollowUpResolved, r1.Status)
	assert.NotEqual(t, f.UpdatedAt, r1.UpdatedAt)

	r2, changed, err := w.Resolve(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, r1.UpdatedAt, r2.UpdatedAt)

	// a new question after resolution opens a fresh thread
	g, created, err := w.Ask(ctx, roleRef, "who now?", "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, f.ID, g.ID)

	_, _, err = w.Resolve(ctx, "FU_missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOpenCounts(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	_, _, err := w.Ask(ctx, roleRef, "q1", "a")
	require.NoError(t, err)
	_, _, err = w.Ask(ctx, followup.Ref{ProcessID: "PT_A", SubProcessID: "SP_1", AttributeKey: "owner"}, "q2", "a")
	require.NoError(t, err)
	f3, _, err := w.Ask(ctx, followup.Ref{ProcessID: "PT_A", SubProcessID: "SP_2", AttributeKey: "role"}, "q3", "a")
	require.NoError(t, err)

	counts, err := w.OpenCounts(ctx, "PT_A")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SP_1": 2, "SP_2": 1}, counts)

	_, _, err = w.Resolve(ctx, f3.ID)
	require.NoError(t, err)
	counts, err = w.OpenCounts(ctx, "PT_A")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SP_1": 2}, counts)
}

func TestReassignAndDropMissing(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	_, _, err := w.Ask(ctx, roleRef, "q1", "a")
	require.NoError(t, err)
	_, _, err = w.Ask(ctx, followup.Ref{ProcessID: "PT_A", SubProcessID: "SP_1", AttributeKey: "owner"}, "q2", "a")
	require.NoError(t, err)

	moved, err := w.Reassign(ctx, roleRef, "roles")
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "roles", moved[0].AttributeKey)

	dropped, err := w.DropMissing(ctx, "PT_A", "SP_1", []string{"roles"})
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "FU_2", dropped[0].ID)
	assert.Equal(t, "owner", dropped[0].AttributeKey)

	items, err := w.List(ctx, "PT_A", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "roles", items[0].AttributeKey)

	_, err = w.Delete(ctx, items[0].ID)
	require.NoError(t, err)
	_, err = w.Delete(ctx, items[0].ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
