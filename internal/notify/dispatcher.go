// Package notify fans alert triggers out to webhook, email and
// websocket transports. Delivery failures are recorded, never fatal: a
// trigger that could not be delivered keeps notified=false so audits can
// reprocess it.
package notify

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
)

// Payload is the notification body shared by all transports.
type Payload struct {
	AlertID     int64   `json:"alert_id"`
	AlertType   string  `json:"alert_type"`
	OldPrice    float64 `json:"old_price"`
	NewPrice    float64 `json:"new_price"`
	SavingsPct  float64 `json:"savings_pct"`
	Provider    string  `json:"provider,omitempty"`
	Skill       string  `json:"skill,omitempty"`
	TriggeredAt string  `json:"triggered_at"`
}

// Gateway is the live-connection registry used for websocket pushes.
type Gateway interface {
	BroadcastAlert(agentID int64, payload interface{}) bool
}

// TriggerMarker flips the notified flag once a transport succeeded.
type TriggerMarker interface {
	MarkNotified(triggerID int64) error
}

// Dispatcher routes one trigger to its alert's notify method.
type Dispatcher struct {
	webhook *WebhookSender
	email   *EmailSender
	gateway Gateway
	marker  TriggerMarker
	log     zerolog.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(webhook *WebhookSender, email *EmailSender, gateway Gateway, marker TriggerMarker, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		webhook: webhook,
		email:   email,
		gateway: gateway,
		marker:  marker,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers a trigger. Implements alerts.Notifier.
func (d *Dispatcher) Dispatch(alert alerts.Alert, trigger alerts.Trigger) {
	payload := buildPayload(alert, trigger)

	var delivered bool
	switch alert.NotifyMethod {
	case alerts.NotifyWebhook:
		delivered = d.webhook.Send(alert.WebhookURL, payload)
	case alerts.NotifyEmail:
		delivered = d.email.Send(alert.Email, payload)
	case alerts.NotifyWebsocket:
		delivered = d.gateway != nil && d.gateway.BroadcastAlert(alert.AgentID, map[string]interface{}{
			"type": "price_alert",
			"data": payload,
		})
	default:
		d.log.Warn().Str("method", alert.NotifyMethod).Int64("alert_id", alert.ID).Msg("Unknown notify method")
		return
	}

	if !delivered {
		d.log.Warn().
			Int64("alert_id", alert.ID).
			Int64("trigger_id", trigger.ID).
			Str("method", alert.NotifyMethod).
			Msg("Notification delivery failed, trigger kept unnotified")
		return
	}

	// Best-effort: a failed marker never fails the dispatch.
	if err := d.marker.MarkNotified(trigger.ID); err != nil {
		d.log.Error().Err(err).Int64("trigger_id", trigger.ID).Msg("Failed to mark trigger notified")
	}
}

func buildPayload(alert alerts.Alert, trigger alerts.Trigger) Payload {
	savings := 0.0
	if trigger.OldPrice != 0 {
		savings = 100 * (trigger.OldPrice - trigger.NewPrice) / trigger.OldPrice
	}

	return Payload{
		AlertID:     alert.ID,
		AlertType:   alert.AlertType,
		OldPrice:    trigger.OldPrice,
		NewPrice:    trigger.NewPrice,
		SavingsPct:  savings,
		Provider:    trigger.Provider,
		Skill:       trigger.Skill,
		TriggeredAt: trigger.TriggeredAt.UTC().Format(time.RFC3339),
	}
}
