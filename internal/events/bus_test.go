package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"processmap/internal/domain"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	changes, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	bus.Publish(domain.Change{Type: "subprocess.attributes.saved", SubProcessID: "SP_1"})
	select {
	case c := <-changes:
		require.Equal(t, "SP_1", c.SubProcessID)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}

	cancel()
	for range changes {
	}
	require.NoError(t, bus.Close())
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(domain.Change{Type: "x"})
	require.NoError(t, bus.Close())
}
