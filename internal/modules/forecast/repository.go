package forecast

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/database"
)

// Repository handles forecast persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new forecast repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "forecast").Logger(),
	}
}

// ReplaceForSkill garbage-collects a skill's stale forecasts (dated before
// today, or generated more than maxAge ago) and inserts the new batch in
// one transaction. Duplicate (skill, forecast_date) rows are swallowed.
func (r *Repository) ReplaceForSkill(skill string, predictions []Prediction, today time.Time, maxAge time.Duration) error {
	now := time.Now().UTC()
	generatedCutoff := now.Add(-maxAge).Format(time.RFC3339)
	todayStr := today.UTC().Format("2006-01-02")

	features, err := json.Marshal(FeaturesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM price_forecasts
			WHERE skill = ? AND (forecast_date < ? OR generated_at < ?)`,
			skill, todayStr, generatedCutoff); err != nil {
			return fmt.Errorf("failed to delete stale forecasts: %w", err)
		}

		for _, p := range predictions {
			if _, err := tx.Exec(`
				INSERT OR IGNORE INTO price_forecasts
				(skill, forecast_date, predicted_price, confidence, model_version, features_used, generated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				skill, p.Date, p.Price, p.Confidence, ModelVersion,
				string(features), now.Format(time.RFC3339)); err != nil {
				return fmt.Errorf("failed to insert forecast: %w", err)
			}
		}

		return nil
	})
}

// GetForSkill returns a skill's forecasts from today onward, limited to
// the requested horizon.
func (r *Repository) GetForSkill(skill string, days int) ([]Row, error) {
	today := time.Now().UTC().Format("2006-01-02")

	rows, err := r.db.Query(`
		SELECT id, skill, forecast_date, predicted_price, confidence,
		       model_version, COALESCE(features_used, ''), generated_at
		FROM price_forecasts
		WHERE skill = ? AND forecast_date >= ?
		ORDER BY forecast_date ASC
		LIMIT ?`, skill, today, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []Row
	for rows.Next() {
		var f Row
		var features, generatedAt string
		if err := rows.Scan(&f.ID, &f.Skill, &f.ForecastDate, &f.PredictedPrice,
			&f.Confidence, &f.ModelVersion, &features, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		if features != "" {
			_ = json.Unmarshal([]byte(features), &f.FeaturesUsed)
		}
		f.GeneratedAt = parseTime(generatedAt)
		forecasts = append(forecasts, f)
	}

	return forecasts, rows.Err()
}

// Status summarizes forecast coverage per skill.
func (r *Repository) Status() ([]SkillStatus, error) {
	rows, err := r.db.Query(`
		SELECT skill, COUNT(*), MIN(forecast_date), MAX(forecast_date), MAX(generated_at)
		FROM price_forecasts
		GROUP BY skill
		ORDER BY skill`)
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast status: %w", err)
	}
	defer rows.Close()

	var statuses []SkillStatus
	for rows.Next() {
		var s SkillStatus
		var generatedAt sql.NullString
		if err := rows.Scan(&s.Skill, &s.ForecastCount, &s.FirstDate, &s.LastDate, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forecast status: %w", err)
		}
		if generatedAt.Valid {
			t := parseTime(generatedAt.String)
			s.GeneratedAt = &t
		}
		statuses = append(statuses, s)
	}

	return statuses, rows.Err()
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
