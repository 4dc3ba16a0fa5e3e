package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/rs/zerolog"
)

// SMTPConfig is the environment-sourced mail transport configuration.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether credentials are present. Without them every
// send is a no-op that returns failure.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != ""
}

var emailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>Price alert fired</h2>
  <p>Your alert #{{.AlertID}} ({{.AlertType}}) triggered.</p>
  <table cellpadding="6">
    <tr><td><b>Previous price</b></td><td>{{printf "%.6f" .OldPrice}}</td></tr>
    <tr><td><b>Current price</b></td><td>{{printf "%.6f" .NewPrice}}</td></tr>
    <tr><td><b>Savings</b></td><td>{{printf "%.2f" .SavingsPct}}%</td></tr>
    {{if .Skill}}<tr><td><b>Skill</b></td><td>{{.Skill}}</td></tr>{{end}}
    {{if .Provider}}<tr><td><b>Provider</b></td><td>{{.Provider}}</td></tr>{{end}}
    <tr><td><b>Triggered at</b></td><td>{{.TriggeredAt}}</td></tr>
  </table>
</body>
</html>`))

// sendMailFunc is swappable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender renders the alert template and hands it to SMTP.
type EmailSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	log      zerolog.Logger
}

// NewEmailSender creates an email sender
func NewEmailSender(cfg SMTPConfig, log zerolog.Logger) *EmailSender {
	return &EmailSender{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		log:      log.With().Str("component", "email_sender").Logger(),
	}
}

// Send delivers the rendered alert email. Missing SMTP credentials make
// this a no-op failure.
func (s *EmailSender) Send(to string, payload Payload) bool {
	if !s.cfg.Configured() {
		s.log.Debug().Msg("SMTP not configured, skipping email notification")
		return false
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to render alert email")
		return false
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Price alert #%d fired\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, to, payload.AlertID, body.String())

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		s.log.Warn().Err(err).Str("to", to).Msg("Failed to send alert email")
		return false
	}

	return true
}
