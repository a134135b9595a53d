package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// EventPublisher is the async fan-out (Kafka in production).
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifier executes outbound events best-effort: WS push to the provider if
// a session exists, HTTP push fallback, and the event bus for async
// consumers. Failures are logged and absorbed; notification delivery is
// never allowed to fail a dispatch.
type Notifier struct {
	WS           *WSRegistry
	Publisher    EventPublisher
	PushEndpoint string // optional provider-app backend
	Client       *http.Client
	Logger       *slog.Logger
}

func NewNotifier(ws *WSRegistry, pub EventPublisher, pushEndpoint string, logger *slog.Logger) *Notifier {
	return &Notifier{
		WS:           ws,
		Publisher:    pub,
		PushEndpoint: pushEndpoint,
		Client:       &http.Client{Timeout: 3 * time.Second},
		Logger:       logger,
	}
}

func (n *Notifier) Emit(ctx context.Context, events []Event) {
	for _, ev := range events {
		n.emit(ctx, ev)
	}
}

func (n *Notifier) emit(ctx context.Context, ev Event) {
	if n.Publisher != nil {
		if err := n.Publisher.Publish(ctx, ev); err != nil {
			n.Logger.Warn("event publish failed", "kind", ev.Kind, "request_id", ev.RequestID, "error", err)
		}
	}
	if ev.Kind != EventProviderNotify {
		return
	}
	if n.WS != nil {
		if err := n.WS.Notify(ev.ProviderID, ev); err == nil {
			return
		}
	}
	if n.PushEndpoint == "" {
		n.Logger.Warn("no delivery channel for provider", "provider_id", ev.ProviderID, "request_id", ev.RequestID)
		return
	}
	b, _ := json.Marshal(ev)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.PushEndpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		n.Logger.Warn("push notify failed", "provider_id", ev.ProviderID, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.Logger.Warn("push notify rejected", "provider_id", ev.ProviderID, "status", resp.StatusCode)
	}
}
