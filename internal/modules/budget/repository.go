package budget

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/domain"
)

// Repository handles budget and request-log database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new budget repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "budget").Logger(),
	}
}

// GetCurrent returns the agent's budget row for the current period,
// lazily materializing a zero-spent row. The monthly limit carries over
// from the agent's most recent prior period.
func (r *Repository) GetCurrent(agentID int64) (Budget, error) {
	period := CurrentPeriod(time.Now())

	b, err := r.get(agentID, period)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Budget{}, err
	}

	limit := 0.0
	var prevLimit sql.NullFloat64
	err = r.db.QueryRow(`
		SELECT monthly_limit FROM budgets
		WHERE agent_id = ? ORDER BY period DESC LIMIT 1`, agentID).Scan(&prevLimit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Budget{}, fmt.Errorf("failed to read prior budget: %w", err)
	}
	if prevLimit.Valid {
		limit = prevLimit.Float64
	}

	res, err := r.db.Exec(`
		INSERT INTO budgets (agent_id, monthly_limit, spent, period)
		VALUES (?, ?, 0, ?)`, agentID, limit, period)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to materialize budget period: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Budget{}, fmt.Errorf("failed to read budget id: %w", err)
	}

	return Budget{ID: id, AgentID: agentID, MonthlyLimit: limit, Period: period}, nil
}

func (r *Repository) get(agentID int64, period string) (Budget, error) {
	var b Budget
	err := r.db.QueryRow(`
		SELECT id, agent_id, monthly_limit, spent, period
		FROM budgets WHERE agent_id = ? AND period = ?`, agentID, period).Scan(
		&b.ID, &b.AgentID, &b.MonthlyLimit, &b.Spent, &b.Period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Budget{}, err
		}
		return Budget{}, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// SetLimit updates the agent's limit for the current period.
func (r *Repository) SetLimit(agentID int64, limit float64) (Budget, error) {
	if limit < 0 {
		return Budget{}, fmt.Errorf("monthly_limit must be non-negative: %w", domain.ErrValidation)
	}

	current, err := r.GetCurrent(agentID)
	if err != nil {
		return Budget{}, err
	}

	if _, err := r.db.Exec("UPDATE budgets SET monthly_limit = ? WHERE id = ?", limit, current.ID); err != nil {
		return Budget{}, fmt.Errorf("failed to set budget limit: %w", err)
	}

	current.MonthlyLimit = limit
	return current, nil
}

// RecordSpend adds a successful call's cost to the current period and
// appends the request log entry. Spent only ever grows.
func (r *Repository) RecordSpend(entry RequestLogEntry) error {
	if entry.Cost < 0 {
		return fmt.Errorf("cost must be non-negative: %w", domain.ErrValidation)
	}

	current, err := r.GetCurrent(entry.AgentID)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec("UPDATE budgets SET spent = spent + ? WHERE id = ?", entry.Cost, current.ID); err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}

	if _, err := r.db.Exec(`
		INSERT INTO request_log (agent_id, provider, category, cost, latency_ms, tokens_in, tokens_out, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AgentID, entry.Provider, nullStr(entry.Category), entry.Cost,
		entry.LatencyMs, entry.TokensIn, entry.TokensOut, nullStr(entry.Status),
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to append request log: %w", err)
	}

	return nil
}

// History returns the agent's request log, newest first.
func (r *Repository) History(agentID int64, limit int) ([]RequestLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, agent_id, provider, COALESCE(category, ''), cost,
		       COALESCE(latency_ms, 0), COALESCE(tokens_in, 0), COALESCE(tokens_out, 0),
		       COALESCE(status, ''), created_at
		FROM request_log
		WHERE agent_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get request history: %w", err)
	}
	defer rows.Close()

	var entries []RequestLogEntry
	for rows.Next() {
		var e RequestLogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Provider, &e.Category, &e.Cost,
			&e.LatencyMs, &e.TokensIn, &e.TokensOut, &e.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan request log entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
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
