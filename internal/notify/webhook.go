package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	webhookTimeout   = 5 * time.Second
	webhookUserAgent = "agora-oracle-alerts/1.0"
)

// webhookBody is the JSON posted to webhook consumers.
type webhookBody struct {
	Event string `json:"event"`
	Payload
	Source  string `json:"source"`
	Version string `json:"version"`
	Retry   bool   `json:"retry,omitempty"`
}

// WebhookSender delivers alert payloads over HTTP POST with one retry.
type WebhookSender struct {
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookSender creates a webhook sender
func NewWebhookSender(log zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: webhookTimeout},
		log:    log.With().Str("component", "webhook_sender").Logger(),
	}
}

// Send posts the payload. A non-2xx status or transport error is retried
// exactly once with retry=true. Returns true when either attempt landed.
func (s *WebhookSender) Send(url string, payload Payload) bool {
	if s.post(url, payload, false) {
		return true
	}

	s.log.Warn().Str("url", url).Int64("alert_id", payload.AlertID).Msg("Webhook delivery failed, retrying once")
	return s.post(url, payload, true)
}

func (s *WebhookSender) post(url string, payload Payload, retry bool) bool {
	body := webhookBody{
		Event:   "price_alert",
		Payload: payload,
		Source:  "agora-oracle",
		Version: "1.0",
		Retry:   retry,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal webhook body")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("Failed to build webhook request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("Webhook request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Webhook rejected")
		return false
	}

	return true
}
