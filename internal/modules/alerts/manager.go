package alerts

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
)

// Trigger history responses are capped at the newest rows.
const historyLimit = 50

// Manager provides validated CRUD over alerts. Authorization is the
// caller's contract: an alert may be read, updated or deleted only by
// the agent whose id equals alert.AgentID; Manager enforces it on every
// id-addressed operation.
type Manager struct {
	repo *Repository
	log  zerolog.Logger
}

// NewManager creates a new alert manager
func NewManager(repo *Repository, log zerolog.Logger) *Manager {
	return &Manager{
		repo: repo,
		log:  log.With().Str("component", "alert_manager").Logger(),
	}
}

// Create validates and stores a new alert for an agent.
func (m *Manager) Create(alert Alert) (Alert, error) {
	if err := validateAlert(alert); err != nil {
		return Alert{}, err
	}
	if alert.TargetSkill != "" {
		alert.TargetSkill = domain.CanonicalSkill(alert.TargetSkill)
	}
	return m.repo.Create(alert)
}

// List returns an agent's alerts, most recent first.
func (m *Manager) List(agentID int64) ([]Alert, error) {
	return m.repo.ListByAgent(agentID)
}

// Get returns one alert after ownership checks.
func (m *Manager) Get(agentID, alertID int64) (*Alert, error) {
	alert, err := m.repo.GetByID(alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("alert %d: %w", alertID, domain.ErrNotFound)
	}
	if alert.AgentID != agentID {
		return nil, domain.ErrForbidden
	}
	return alert, nil
}

// UpdateStatus transitions an alert between active, paused and expired.
func (m *Manager) UpdateStatus(agentID, alertID int64, status string) (*Alert, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("status must be active, paused or expired: %w", domain.ErrValidation)
	}

	if _, err := m.Get(agentID, alertID); err != nil {
		return nil, err
	}

	if _, err := m.repo.UpdateStatus(alertID, status); err != nil {
		return nil, err
	}

	return m.repo.GetByID(alertID)
}

// Delete hard-deletes an alert.
func (m *Manager) Delete(agentID, alertID int64) error {
	if _, err := m.Get(agentID, alertID); err != nil {
		return err
	}

	deleted, err := m.repo.Delete(alertID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("alert %d: %w", alertID, domain.ErrNotFound)
	}

	m.log.Info().Int64("alert_id", alertID).Int64("agent_id", agentID).Msg("Alert deleted")
	return nil
}

// History returns the last 50 triggers for an alert, newest first.
func (m *Manager) History(agentID, alertID int64) ([]Trigger, error) {
	if _, err := m.Get(agentID, alertID); err != nil {
		return nil, err
	}
	return m.repo.History(alertID, historyLimit)
}

// validateAlert enforces the constructor rules: known type and method,
// conditional requirements, and at least one target.
func validateAlert(alert Alert) error {
	if !validAlertType(alert.AlertType) {
		return fmt.Errorf("unknown alert_type %q: %w", alert.AlertType, domain.ErrValidation)
	}
	if !validNotifyMethod(alert.NotifyMethod) {
		return fmt.Errorf("unknown notify_method %q: %w", alert.NotifyMethod, domain.ErrValidation)
	}
	if alert.TargetSkill == "" && alert.TargetProvider == "" {
		return fmt.Errorf("target_skill or target_provider is required: %w", domain.ErrValidation)
	}
	if alert.AlertType == TypePriceThreshold && alert.MaxPrice == nil {
		return fmt.Errorf("max_price is required for price_threshold alerts: %w", domain.ErrValidation)
	}
	if alert.NotifyMethod == NotifyWebhook && alert.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required for webhook notification: %w", domain.ErrValidation)
	}
	if alert.NotifyMethod == NotifyEmail && alert.Email == "" {
		return fmt.Errorf("email is required for email notification: %w", domain.ErrValidation)
	}
	return nil
}
