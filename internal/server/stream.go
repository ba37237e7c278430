package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"go.uber.org/zap"

	"processmap/internal/domain"
	"processmap/internal/events"
)

// streamReady is the first event of every stream, sent once the
// subscription is live.
type streamReady struct {
	ProcessID    string `json:"process_id,omitempty"`
	SubProcessID string `json:"sub_process_id,omitempty"`
}

// registerChangeStream exposes the change bus as server-sent events. Each
// committed mutation arrives as a "change" event; clients refetch what
// they display.
func registerChangeStream(api huma.API, bus *events.Bus, logger *zap.Logger) {
	sse.Register(api, huma.Operation{
		OperationID: "stream-changes",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "Live change notifications",
		Description: "A ready event opens the stream once it is subscribed. Optional process_id and sub_process_id narrow the stream.",
	}, map[string]any{
		"ready":  streamReady{},
		"change": domain.Change{},
	}, func(ctx context.Context, input *struct {
		ProcessID    string `query:"process_id"`
		SubProcessID string `query:"sub_process_id"`
	}, send sse.Sender) {
		if bus == nil {
			return
		}
		changes, err := bus.Subscribe(ctx)
		if err != nil {
			logger.Error("subscribe to changes", zap.Error(err))
			return
		}
		if err := send.Data(streamReady{ProcessID: input.ProcessID, SubProcessID: input.SubProcessID}); err != nil {
			return
		}
		for c := range changes {
			if input.ProcessID != "" && c.ProcessID != input.ProcessID {
				continue
			}
			if input.SubProcessID != "" && c.SubProcessID != input.SubProcessID {
				continue
			}
			if err := send(sse.Message{ID: int(c.EventID), Data: c}); err != nil {
				logger.Debug("change stream closed", zap.Error(err))
				return
			}
		}
	})
}
