package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"processmap/internal/domain"
)

const ChangesTopic = "changes"

// Bus fans committed changes out to live subscribers. Delivery is best
// effort: changes published while nobody listens are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{}),
		logger: logger,
	}
}

// Publish is a no-op on a nil bus.
func (b *Bus) Publish(c domain.Change) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		b.logger.Error("encode change", zap.String("type", c.Type), zap.Error(err))
		return
	}
	if err := b.pubsub.Publish(ChangesTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		b.logger.Warn("publish change", zap.String("type", c.Type), zap.Error(err))
	}
}

// Subscribe streams changes until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.Change, error) {
	msgs, err := b.pubsub.Subscribe(ctx, ChangesTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ChangesTopic, err)
	}
	out := make(chan domain.Change)
	go func() {
		defer close(out)
		for msg := range msgs {
			var c domain.Change
			if err := json.Unmarshal(msg.Payload, &c); err != nil {
				b.logger.Warn("decode change", zap.String("message_uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.pubsub.Close()
}
