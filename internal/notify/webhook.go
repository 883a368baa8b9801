// Package notify delivers best-effort status updates to a caller-supplied
// webhook address.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type statusUpdate struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WebhookNotifier POSTs status updates as JSON. Delivery is fire-and-forget:
// it runs detached from the caller's context and any failure is logged, never
// returned.
type WebhookNotifier struct {
	client *http.Client
}

func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends {status, message} to callbackURL. A blank URL is a no-op.
func (n *WebhookNotifier) Notify(ctx context.Context, callbackURL, status, message string) {
	if callbackURL == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	go n.send(detached, callbackURL, statusUpdate{Status: status, Message: message})
}

func (n *WebhookNotifier) send(ctx context.Context, callbackURL string, update statusUpdate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Notification panic", "url", callbackURL, "panic", r)
		}
	}()

	body, err := json.Marshal(update)
	if err != nil {
		slog.Warn("Failed to marshal notification", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("Failed to build notification request", "url", callbackURL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("Notification delivery failed", "url", callbackURL, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("Notification rejected", "url", callbackURL, "status", resp.StatusCode)
	}
}
