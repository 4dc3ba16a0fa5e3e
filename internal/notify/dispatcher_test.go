package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
)

type stubMarker struct {
	marked []int64
	err    error
}

func (m *stubMarker) MarkNotified(triggerID int64) error {
	if m.err != nil {
		return m.err
	}
	m.marked = append(m.marked, triggerID)
	return nil
}

type stubGateway struct {
	connected bool
	payloads  []interface{}
}

func (g *stubGateway) BroadcastAlert(_ int64, payload interface{}) bool {
	if !g.connected {
		return false
	}
	g.payloads = append(g.payloads, payload)
	return true
}

func sampleAlert(method string) alerts.Alert {
	return alerts.Alert{
		ID:           7,
		AgentID:      3,
		AlertType:    alerts.TypePriceDrop,
		TargetSkill:  "translation/en-fr",
		NotifyMethod: method,
	}
}

func sampleTrigger() alerts.Trigger {
	return alerts.Trigger{
		ID:          42,
		AlertID:     7,
		OldPrice:    0.02,
		NewPrice:    0.015,
		Skill:       "translation/en-fr",
		Provider:    "market agent",
		TriggeredAt: time.Now(),
	}
}

func TestWebhook_SuccessMarksNotified(t *testing.T) {
	var bodies []webhookBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body webhookBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		assert.Equal(t, webhookUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	marker := &stubMarker{}
	d := NewDispatcher(NewWebhookSender(zerolog.Nop()), nil, nil, marker, zerolog.Nop())

	alert := sampleAlert(alerts.NotifyWebhook)
	alert.WebhookURL = server.URL
	d.Dispatch(alert, sampleTrigger())

	require.Len(t, bodies, 1)
	assert.Equal(t, "price_alert", bodies[0].Event)
	assert.False(t, bodies[0].Retry)
	assert.InDelta(t, 25.0, bodies[0].SavingsPct, 1e-9)
	assert.Equal(t, []int64{42}, marker.marked)
}

func TestWebhook_RetriesExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var body webhookBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if n == 1 {
			assert.False(t, body.Retry)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.True(t, body.Retry)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	marker := &stubMarker{}
	d := NewDispatcher(NewWebhookSender(zerolog.Nop()), nil, nil, marker, zerolog.Nop())

	alert := sampleAlert(alerts.NotifyWebhook)
	alert.WebhookURL = server.URL
	d.Dispatch(alert, sampleTrigger())

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []int64{42}, marker.marked)
}

func TestWebhook_BothAttemptsFailKeepsUnnotified(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	marker := &stubMarker{}
	d := NewDispatcher(NewWebhookSender(zerolog.Nop()), nil, nil, marker, zerolog.Nop())

	alert := sampleAlert(alerts.NotifyWebhook)
	alert.WebhookURL = server.URL
	d.Dispatch(alert, sampleTrigger())

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, marker.marked)
}

func TestEmail_UnconfiguredIsNoopFailure(t *testing.T) {
	marker := &stubMarker{}
	email := NewEmailSender(SMTPConfig{}, zerolog.Nop())
	d := NewDispatcher(nil, email, nil, marker, zerolog.Nop())

	alert := sampleAlert(alerts.NotifyEmail)
	alert.Email = "agent@example.com"
	d.Dispatch(alert, sampleTrigger())

	assert.Empty(t, marker.marked)
}

func TestEmail_RendersAndSends(t *testing.T) {
	var sentTo []string
	var sentBody string

	email := NewEmailSender(SMTPConfig{
		Host: "smtp.example.com", Port: 587, User: "mailer", Pass: "secret",
		From: "alerts@example.com",
	}, zerolog.Nop())
	email.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentBody = string(msg)
		return nil
	}

	marker := &stubMarker{}
	d := NewDispatcher(nil, email, nil, marker, zerolog.Nop())

	alert := sampleAlert(alerts.NotifyEmail)
	alert.Email = "agent@example.com"
	d.Dispatch(alert, sampleTrigger())

	assert.Equal(t, []string{"agent@example.com"}, sentTo)
	assert.Contains(t, sentBody, "Price alert #7 fired")
	assert.Contains(t, sentBody, "translation/en-fr")
	assert.Contains(t, sentBody, "0.015000")
	assert.Equal(t, []int64{42}, marker.marked)
}

func TestWebsocket_RequiresLiveConnection(t *testing.T) {
	marker := &stubMarker{}
	gateway := &stubGateway{connected: false}
	d := NewDispatcher(nil, nil, gateway, marker, zerolog.Nop())

	d.Dispatch(sampleAlert(alerts.NotifyWebsocket), sampleTrigger())
	assert.Empty(t, marker.marked)

	gateway.connected = true
	d.Dispatch(sampleAlert(alerts.NotifyWebsocket), sampleTrigger())
	assert.Equal(t, []int64{42}, marker.marked)
	require.Len(t, gateway.payloads, 1)

	msg, ok := gateway.payloads[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "price_alert", msg["type"])
}

func TestDispatch_MarkerFailureDoesNotPanic(t *testing.T) {
	gateway := &stubGateway{connected: true}
	marker := &stubMarker{err: assert.AnError}
	d := NewDispatcher(nil, nil, gateway, marker, zerolog.Nop())

	d.Dispatch(sampleAlert(alerts.NotifyWebsocket), sampleTrigger())
	assert.Len(t, gateway.payloads, 1)
}
