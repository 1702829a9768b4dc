package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookDispatcher delivers webhook messages with an HTTP POST of the
// message JSON to the alert's webhook URL. Messages on channels it has
// no transport for are logged instead, so every configured contact
// still produces a visible record.
type WebhookDispatcher struct {
	client   *http.Client
	fallback *LogDispatcher
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a dispatcher posting to alert webhooks.
// A nil client gets a 10-second-timeout default.
func NewWebhookDispatcher(client *http.Client, logger *slog.Logger) *WebhookDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		client:   client,
		fallback: NewLogDispatcher(logger),
		logger:   logger,
	}
}

// Dispatch posts webhook messages and logs everything else.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelWebhook {
		return d.fallback.Dispatch(ctx, msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Destination, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	d.logger.Info("Webhook delivered",
		slog.String("destination", msg.Destination),
		slog.String("subject", msg.Subject),
	)
	return nil
}
