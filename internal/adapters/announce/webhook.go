package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auctioneer-service/internal/config"

	"github.com/rs/zerolog"
)

// WebhookAnnouncer posts announcement text to a configured webhook. The
// channel is fire-and-forget: callers log failures and move on.
type WebhookAnnouncer struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

type WebhookAnnouncerParams struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewWebhookAnnouncer creates a new webhook announcer. An empty URL yields
// an announcer whose Announce is a no-op.
func NewWebhookAnnouncer(params WebhookAnnouncerParams) *WebhookAnnouncer {
	return &WebhookAnnouncer{
		url:    params.Config.Announce.URL,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: params.Logger.With().Str("component", "announcer").Logger(),
	}
}

// Announce posts the text to the webhook
func (a *WebhookAnnouncer) Announce(ctx context.Context, text string) error {
	if a.url == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build announcement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("announcement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("announcement rejected with status %d", resp.StatusCode)
	}

	a.logger.Debug().Str("text", text).Msg("Announcement delivered")
	return nil
}
