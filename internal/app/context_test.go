package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"processmap/internal/config"
	"processmap/internal/db"
)

func TestInitThenOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	wrote, err := Init(ctx, dir)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.FileExists(t, config.Path(dir))
	assert.FileExists(t, db.Path(dir))

	wrote, err = Init(ctx, dir)
	require.NoError(t, err)
	assert.False(t, wrote)

	ws, err := Open(ctx, dir, Options{Live: true})
	require.NoError(t, err)
	defer ws.Close()
	assert.NotNil(t, ws.Bus)
	assert.Equal(t, 12*time.Hour, ws.TokenTTL())
	assert.Equal(t, "@daily", ws.Config.Names.SweepSchedule)
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`
auth:
  allowed_emails: [lead@clinic.org]
  token_ttl: 30m
`), 0o644))
	ws, err := Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer ws.Close()

	assert.Nil(t, ws.Bus)
	assert.Equal(t, 30*time.Minute, ws.TokenTTL())
	ok, err := ws.Access.IsAllowed(context.Background(), "lead@clinic.org")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("log:\n  level: loud\n"), 0o644))
	_, err := Open(context.Background(), dir, Options{})
	assert.Error(t, err)
}
