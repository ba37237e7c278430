package dataset_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/attr"
	"processmap/internal/config"
	"processmap/internal/dataset"
	"processmap/internal/db"
	"processmap/internal/engine"
	"processmap/internal/migrate"
)

const actor = "lead@clinic.org"

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	eng := engine.New(conn, config.Default(), nil, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(eng.Wait)
	return eng
}

func TestDemoDataset(t *testing.T) {
	doc := dataset.Demo()
	require.Len(t, doc.Processes, 2)
	assert.Equal(t, "PT_BOOKING", doc.Processes[0].ID)
	assert.Len(t, doc.Processes[0].SubProcesses, 6)
	assert.Len(t, doc.Processes[1].SubProcesses, 15)
	require.NotNil(t, doc.Processes[1].DependsOn)
	assert.Equal(t, "PT_BOOKING", *doc.Processes[1].DependsOn)

	first := doc.Processes[0].SubProcesses[0]
	role, ok := first.Attributes.Get("role")
	require.True(t, ok)
	assert.Equal(t, attr.Strings("RO"), role)
	desc, _ := first.Attributes.Get("description")
	assert.Equal(t, attr.KindString, desc.Kind)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	for name, in := range map[string]string{
		"not json":         `{`,
		"missing list":     `{}`,
		"blank name":       `{"processes":[{"name":"  "}]}`,
		"negative seq":     `{"processes":[{"name":"A","seq":-1}]}`,
		"array attributes": `{"processes":[{"name":"A","sub_processes":[{"name":"B","attributes":[]}]}]}`,
		"unknown field":    `{"processes":[],"extra":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := dataset.Parse([]byte(in))
			assert.ErrorIs(t, err, dataset.ErrInvalidDocument)
		})
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	sum, err := dataset.Import(ctx, eng, dataset.Demo(), dataset.ImportOptions{ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, dataset.Summary{Processes: 2, SubProcesses: 21, Attributes: 55}, sum)

	out, err := dataset.Export(ctx, eng)
	require.NoError(t, err)
	data, err := json.Marshal(out)
	require.NoError(t, err)
	again, err := dataset.Parse(data)
	require.NoError(t, err)

	diff := cmp.Diff(dataset.Demo(), again, cmp.Comparer(func(a, b attr.Map) bool {
		x, _ := json.Marshal(a)
		y, _ := json.Marshal(b)
		return string(x) == string(y)
	}))
	assert.Empty(t, diff)

	names, err := eng.Names.Lookup(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, names, 8)

	_, err = dataset.Import(ctx, eng, dataset.Demo(), dataset.ImportOptions{ActorID: actor})
	assert.ErrorIs(t, err, engine.ErrDuplicateName)

	sum, err = dataset.Import(ctx, eng, dataset.Demo(), dataset.ImportOptions{ActorID: actor, Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 21, sum.SubProcesses)
}

func TestImportLinksForwardDependencies(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	doc, err := dataset.Parse([]byte(`{"processes":[
		{"name":"Later step","depends_on":"PT_FIRST_STEP","sub_processes":[
			{"id":"SP_B","name":"b","depends_on":"SP_A"},
			{"id":"SP_A","name":"a","attributes":{"done":{"type":"boolean","value":true}}}
		]},
		{"name":"First step"}
	]}`))
	require.NoError(t, err)
	_, err = dataset.Import(ctx, eng, doc, dataset.ImportOptions{ActorID: actor})
	require.NoError(t, err)

	p, err := eng.GetProcess(ctx, "PT_LATER_STEP")
	require.NoError(t, err)
	require.NotNil(t, p.DependsOn)
	assert.Equal(t, "PT_FIRST_STEP", *p.DependsOn)
	sp, err := eng.GetSubProcess(ctx, "SP_B")
	require.NoError(t, err)
	require.NotNil(t, sp.DependsOn)
	assert.Equal(t, "SP_A", *sp.DependsOn)
}
