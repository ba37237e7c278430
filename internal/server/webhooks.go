package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"processmap/internal/config"
	"processmap/internal/domain"
	"processmap/internal/events"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookDispatcher forwards bus changes to the configured URLs. Delivery
// is best effort: a failed POST is logged and not retried.
type WebhookDispatcher struct {
	bus      *events.Bus
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewWebhookDispatcher(bus *events.Bus, hooks []config.WebhookConfig, logger *zap.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	var enabled []config.WebhookConfig
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		enabled = append(enabled, hook)
	}
	return &WebhookDispatcher{
		bus:      bus,
		webhooks: enabled,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
	}
}

// Start subscribes to the bus and delivers until ctx is done. It is a no-op
// without enabled webhooks.
func (d *WebhookDispatcher) Start(ctx context.Context) error {
	if len(d.webhooks) == 0 || d.bus == nil {
		return nil
	}
	changes, err := d.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	filters := make([]eventFilter, len(d.webhooks))
	for i, hook := range d.webhooks {
		filters[i] = newEventFilter(hook.Events)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for c := range changes {
			for i, hook := range d.webhooks {
				if !filters[i].match(c.Type) {
					continue
				}
				if err := d.post(ctx, hook, c); err != nil {
					d.logger.Warn("webhook delivery failed",
						zap.String("url", hook.URL),
						zap.String("event", c.Type),
						zap.Int64("event_id", c.EventID),
						zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Wait blocks until the delivery loop has exited.
func (d *WebhookDispatcher) Wait() {
	d.wg.Wait()
}

func (d *WebhookDispatcher) post(ctx context.Context, hook config.WebhookConfig, c domain.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Processmap-Event", c.Type)
	req.Header.Set("X-Processmap-Delivery", fmt.Sprintf("%d", c.EventID))
	if c.ProcessID != "" {
		req.Header.Set("X-Processmap-Process", c.ProcessID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Processmap-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

// newEventFilter matches exact event types; an entry ending in ".*" matches
// every type with that prefix.
func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[evt]; ok {
		return true
	}
	if i := strings.Index(evt, "."); i > 0 {
		_, ok := f.set[evt[:i]+".*"]
		return ok
	}
	return false
}
