package alerts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles alert and trigger database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alert repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

const alertColumns = `
	id, agent_id, alert_type, COALESCE(target_skill, ''), COALESCE(target_provider, ''),
	max_price, notify_method, COALESCE(webhook_url, ''), COALESCE(email, ''),
	status, last_triggered, created_at`

// Create inserts a validated alert and returns it with its id.
func (r *Repository) Create(alert Alert) (Alert, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO price_alerts
		(agent_id, alert_type, target_skill, target_provider, max_price,
		 notify_method, webhook_url, email, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.AgentID, alert.AlertType, nullStr(alert.TargetSkill), nullStr(alert.TargetProvider),
		nullFloat(alert.MaxPrice), alert.NotifyMethod, nullStr(alert.WebhookURL),
		nullStr(alert.Email), StatusActive, now.Format(time.RFC3339))
	if err != nil {
		return Alert{}, fmt.Errorf("failed to create alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Alert{}, fmt.Errorf("failed to read alert id: %w", err)
	}

	alert.ID = id
	alert.Status = StatusActive
	alert.CreatedAt = now

	r.log.Info().
		Int64("alert_id", id).
		Int64("agent_id", alert.AgentID).
		Str("type", alert.AlertType).
		Msg("Alert created")

	return alert, nil
}

// GetByID returns one alert, or nil when it does not exist.
func (r *Repository) GetByID(id int64) (*Alert, error) {
	row := r.db.QueryRow("SELECT "+alertColumns+" FROM price_alerts WHERE id = ?", id)

	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

// ListByAgent returns an agent's alerts, most recent first.
func (r *Repository) ListByAgent(agentID int64) ([]Alert, error) {
	rows, err := r.db.Query(
		"SELECT "+alertColumns+" FROM price_alerts WHERE agent_id = ? ORDER BY created_at DESC, id DESC",
		agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// ListActive returns all alerts with status = active, oldest first so
// evaluation order is deterministic.
func (r *Repository) ListActive() ([]Alert, error) {
	rows, err := r.db.Query(
		"SELECT "+alertColumns+" FROM price_alerts WHERE status = ? ORDER BY id ASC",
		StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// UpdateStatus changes an alert's status. Returns false when the alert
// does not exist.
func (r *Repository) UpdateStatus(id int64, status string) (bool, error) {
	res, err := r.db.Exec("UPDATE price_alerts SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return false, fmt.Errorf("failed to update alert status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete removes an alert and its triggers. Returns false when the alert
// does not exist.
func (r *Repository) Delete(id int64) (bool, error) {
	if _, err := r.db.Exec("DELETE FROM alert_triggers WHERE alert_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete alert triggers: %w", err)
	}

	res, err := r.db.Exec("DELETE FROM price_alerts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// History returns the newest triggers for an alert.
func (r *Repository) History(alertID int64, limit int) ([]Trigger, error) {
	rows, err := r.db.Query(`
		SELECT id, alert_id, old_price, new_price, COALESCE(provider, ''),
		       COALESCE(skill, ''), triggered_at, notified
		FROM alert_triggers
		WHERE alert_id = ?
		ORDER BY triggered_at DESC, id DESC
		LIMIT ?`, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger history: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var t Trigger
		var triggeredAt string
		var notified int
		if err := rows.Scan(&t.ID, &t.AlertID, &t.OldPrice, &t.NewPrice,
			&t.Provider, &t.Skill, &triggeredAt, &notified); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		t.TriggeredAt = parseTime(triggeredAt)
		t.Notified = notified != 0
		triggers = append(triggers, t)
	}

	return triggers, rows.Err()
}

// LatestTrigger returns an alert's most recent trigger, or nil when it
// has never fired.
func (r *Repository) LatestTrigger(alertID int64) (*Trigger, error) {
	triggers, err := r.History(alertID, 1)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, nil
	}
	return &triggers[0], nil
}

// InsertTrigger records that an alert fired and stamps last_triggered.
func (r *Repository) InsertTrigger(t Trigger) (Trigger, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO alert_triggers (alert_id, old_price, new_price, provider, skill, triggered_at, notified)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		t.AlertID, t.OldPrice, t.NewPrice, nullStr(t.Provider), nullStr(t.Skill),
		now.Format(time.RFC3339))
	if err != nil {
		return Trigger{}, fmt.Errorf("failed to insert trigger: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Trigger{}, fmt.Errorf("failed to read trigger id: %w", err)
	}

	if _, err := r.db.Exec("UPDATE price_alerts SET last_triggered = ? WHERE id = ?",
		now.Format(time.RFC3339), t.AlertID); err != nil {
		return Trigger{}, fmt.Errorf("failed to stamp last_triggered: %w", err)
	}

	t.ID = id
	t.TriggeredAt = now
	t.Notified = false
	return t, nil
}

// MarkNotified flips the notified flag on a trigger.
func (r *Repository) MarkNotified(triggerID int64) error {
	if _, err := r.db.Exec("UPDATE alert_triggers SET notified = 1 WHERE id = ?", triggerID); err != nil {
		return fmt.Errorf("failed to mark trigger notified: %w", err)
	}
	return nil
}

// Scan helpers

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (Alert, error) {
	var alert Alert
	var maxPrice sql.NullFloat64
	var lastTriggered sql.NullString
	var createdAt string

	err := row.Scan(&alert.ID, &alert.AgentID, &alert.AlertType, &alert.TargetSkill,
		&alert.TargetProvider, &maxPrice, &alert.NotifyMethod, &alert.WebhookURL,
		&alert.Email, &alert.Status, &lastTriggered, &createdAt)
	if err != nil {
		return alert, err
	}

	if maxPrice.Valid {
		alert.MaxPrice = &maxPrice.Float64
	}
	if lastTriggered.Valid {
		t := parseTime(lastTriggered.String)
		alert.LastTriggered = &t
	}
	alert.CreatedAt = parseTime(createdAt)

	return alert, nil
}

// Helper functions

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
