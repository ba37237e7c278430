package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"processmap/internal/config"
	"processmap/internal/domain"
	"processmap/internal/events"
)

type delivery struct {
	event, secret string
	change        domain.Change
}

func TestWebhookDispatcherForwardsMatchingChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	got := make(chan delivery, 4)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	receiver := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c domain.Change
		_ = json.NewDecoder(r.Body).Decode(&c)
		got <- delivery{event: r.Header.Get("X-Processmap-Event"), secret: r.Header.Get("X-Processmap-Secret"), change: c}
		w.WriteHeader(http.StatusNoContent)
	})}
	go receiver.Serve(ln)
	defer receiver.Shutdown(context.Background())

	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	defer bus.Close()
	off := false
	d := NewWebhookDispatcher(bus, []config.WebhookConfig{
		{URL: "http://" + ln.Addr().String(), Secret: "s3", Events: []string{"follow_up.*"}},
		{URL: "http://" + ln.Addr().String(), Enabled: &off},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	bus.Publish(domain.Change{EventID: 1, Type: "process.created", ProcessID: "PT_A"})
	bus.Publish(domain.Change{EventID: 2, Type: "follow_up.opened", ProcessID: "PT_A"})

	select {
	case dl := <-got:
		assert.Equal(t, "follow_up.opened", dl.event)
		assert.Equal(t, "s3", dl.secret)
		assert.Equal(t, int64(2), dl.change.EventID)
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook delivery")
	}
	cancel()
	d.Wait()
	d.client.CloseIdleConnections()
	assert.Empty(t, got)
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	assert.True(t, all.match("anything"))

	f := newEventFilter([]string{" attribute.renamed ", "follow_up.*", ""})
	assert.True(t, f.match("attribute.renamed"))
	assert.False(t, f.match("attribute.added"))
	assert.True(t, f.match("follow_up.resolved"))
	assert.False(t, f.match("process.deleted"))
}
