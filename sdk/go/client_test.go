package processmapsdk

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"processmap/internal/config"
	"processmap/internal/db"
	"processmap/internal/engine"
	"processmap/internal/engine/auth"
	"processmap/internal/events"
	"processmap/internal/migrate"
	"processmap/internal/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	e := engine.New(conn, config.Default(), bus, logger)
	handler, err := server.New(server.Config{
		Engine: e,
		Access: auth.Service{Repo: e.Repo, Static: []string{"lead@clinic.org"}},
		Bus:    bus,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret", DevLogin: true, TokenTTL: time.Hour},
		Logger: logger,
	})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		e.Wait()
		bus.Close()
		conn.Close()
	})
	return "http://" + ln.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(startServer(t))

	_, err := c.ListProcesses(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	require.NoError(t, c.DevLogin(ctx, "lead@clinic.org"))

	p, err := c.CreateProcess(ctx, "", "Booking")
	require.NoError(t, err)
	assert.Equal(t, "PT_BOOKING", p.ID)

	sp, err := c.CreateSubProcess(ctx, p.ID, "Call intake", map[string]Value{
		"Duration": {Type: "number", Value: 15},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Duration":{"type":"number","value":15}}`, string(sp.Attributes))

	edit, err := c.AddAttribute(ctx, sp.ID, Draft{Key: "Roles", Type: "array", Value: "nurse, receptionist"})
	require.NoError(t, err)
	assert.True(t, edit.Created)

	edit, err = c.EditAttribute(ctx, sp.ID, "Duration", Draft{Key: "Duration (min)", Type: "number", Value: "20"})
	require.NoError(t, err)
	assert.Equal(t, "Duration", edit.RenamedFrom)

	_, err = c.AddAttribute(ctx, sp.ID, Draft{Key: "Roles", Type: "string", Value: "x"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "duplicate_name", apiErr.Code)

	_, err = c.AddAttribute(ctx, sp.ID, Draft{Key: "Cost", Type: "number", Value: "cheap"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_number", apiErr.Code)
	assert.Equal(t, "Cost", apiErr.Details["key"])

	text, err := c.AttributeText(ctx, sp.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "Duration (min)")

	fu, err := c.AskFollowUp(ctx, p.ID, sp.ID, "Roles", "Who covers weekends?")
	require.NoError(t, err)
	counts, err := c.OpenFollowUpCounts(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{sp.ID: 1}, counts)
	fu, err = c.ResolveFollowUp(ctx, fu.ID)
	require.NoError(t, err)
	assert.Equal(t, "resolved", fu.Status)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "follow_up.resolved", page.Items[0].Type)
	assert.NotEmpty(t, page.NextCursor)

	require.NoError(t, c.DeleteProcess(ctx, p.ID))
	procs, err := c.ListProcesses(ctx)
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestClientChanges(t *testing.T) {
	c := New(startServer(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.DevLogin(ctx, "lead@clinic.org"))

	changes, err := c.Changes(ctx, "PT_INTAKE")
	require.NoError(t, err)

	_, err = c.CreateProcess(ctx, "", "Billing")
	require.NoError(t, err)
	_, err = c.CreateProcess(ctx, "PT_INTAKE", "Intake")
	require.NoError(t, err)

	select {
	case ch := <-changes:
		assert.Equal(t, "process.created", ch.Type)
		assert.Equal(t, "PT_INTAKE", ch.ProcessID)
		assert.Equal(t, "lead@clinic.org", ch.ActorID)
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}
}
