package marketplace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/domain"
)

// Repository handles agent-service database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new marketplace repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketplace").Logger(),
	}
}

const agentServiceColumns = `
	agent_id, agent_name, skill, price, unit, currency, uptime,
	avg_latency_ms, rating, reviews_count, COALESCE(x402_endpoint, ''),
	COALESCE(bazaar_url, ''), metadata, last_updated, created_at`

// GetBySkill returns all agent services for a canonical skill, cheapest
// first.
func (r *Repository) GetBySkill(skill string) ([]AgentService, error) {
	rows, err := r.db.Query(
		"SELECT "+agentServiceColumns+" FROM agent_services WHERE skill = ? ORDER BY price ASC",
		domain.CanonicalSkill(skill))
	if err != nil {
		return nil, fmt.Errorf("failed to get agent services by skill: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// List returns agent services with optional skill filter, sorting and
// limit.
func (r *Repository) List(skill, sortBy, order string, limit int) ([]AgentService, error) {
	query := "SELECT " + agentServiceColumns + " FROM agent_services WHERE (? = '' OR skill = ?)"
	args := []interface{}{skill, skill}

	column := map[string]string{
		"price":  "price",
		"rating": "rating",
		"uptime": "uptime",
	}[sortBy]
	if column == "" {
		column = "price"
	}
	direction := "ASC"
	if order == "desc" {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT ?", column, direction)
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent services: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// GetByAgentID returns one agent service, or nil when unknown.
func (r *Repository) GetByAgentID(agentID string) (*AgentService, error) {
	row := r.db.QueryRow(
		"SELECT "+agentServiceColumns+" FROM agent_services WHERE agent_id = ?", agentID)

	svc, err := r.scanOne(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent service: %w", err)
	}
	return &svc, nil
}

// Cheapest returns the lowest-priced agent service for a skill, or nil.
func (r *Repository) Cheapest(skill string) (*AgentService, error) {
	row := r.db.QueryRow(
		"SELECT "+agentServiceColumns+" FROM agent_services WHERE skill = ? ORDER BY price ASC LIMIT 1",
		domain.CanonicalSkill(skill))

	svc, err := r.scanOne(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cheapest agent service: %w", err)
	}
	return &svc, nil
}

// Upsert applies one crawled observation. A price change archives the
// previous price into history and rewrites the current row; identical
// prices are skipped silently. Returns true when the store changed.
func (r *Repository) Upsert(svc AgentService) (bool, error) {
	existing, err := r.GetByAgentID(svc.AgentID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	metadata, err := marshalMetadata(svc.Metadata)
	if err != nil {
		return false, err
	}

	if existing == nil {
		_, err := r.db.Exec(`
			INSERT INTO agent_services
			(agent_id, agent_name, skill, price, unit, currency, uptime, avg_latency_ms,
			 rating, reviews_count, x402_endpoint, bazaar_url, metadata, last_updated, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			svc.AgentID, svc.AgentName, domain.CanonicalSkill(svc.Skill), svc.Price, svc.Unit,
			svc.Currency, nullFloat(svc.Uptime), nullFloat(svc.AvgLatencyMs), nullFloat(svc.Rating),
			nullInt(svc.ReviewsCount), nullStr(svc.X402Endpoint), nullStr(svc.BazaarURL),
			metadata, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert agent service: %w", err)
		}

		r.log.Debug().Str("agent_id", svc.AgentID).Str("skill", svc.Skill).Msg("Agent service cataloged")
		return true, nil
	}

	if existing.Price == svc.Price {
		return false, nil
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO agent_service_history (agent_id, price, uptime, avg_latency_ms, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			existing.AgentID, existing.Price, nullFloat(existing.Uptime),
			nullFloat(existing.AvgLatencyMs), now); err != nil {
			return fmt.Errorf("failed to archive agent service price: %w", err)
		}

		if _, err := tx.Exec(`
			UPDATE agent_services
			SET agent_name = ?, skill = ?, price = ?, unit = ?, currency = ?, uptime = ?,
			    avg_latency_ms = ?, rating = ?, reviews_count = ?, x402_endpoint = ?,
			    bazaar_url = ?, metadata = ?, last_updated = ?
			WHERE agent_id = ?`,
			svc.AgentName, domain.CanonicalSkill(svc.Skill), svc.Price, svc.Unit, svc.Currency,
			nullFloat(svc.Uptime), nullFloat(svc.AvgLatencyMs), nullFloat(svc.Rating),
			nullInt(svc.ReviewsCount), nullStr(svc.X402Endpoint), nullStr(svc.BazaarURL),
			metadata, now, svc.AgentID); err != nil {
			return fmt.Errorf("failed to update agent service: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	r.log.Debug().
		Str("agent_id", svc.AgentID).
		Float64("old_price", existing.Price).
		Float64("new_price", svc.Price).
		Msg("Agent service price updated")

	return true, nil
}

// History returns archived snapshots for an agent, newest first.
func (r *Repository) History(agentID string, limit int) ([]HistoryRow, error) {
	rows, err := r.db.Query(`
		SELECT id, agent_id, price, uptime, avg_latency_ms, recorded_at
		FROM agent_service_history
		WHERE agent_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent service history: %w", err)
	}
	defer rows.Close()

	var history []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var uptime, latency sql.NullFloat64
		var recordedAt string
		if err := rows.Scan(&h.ID, &h.AgentID, &h.Price, &uptime, &latency, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if uptime.Valid {
			h.Uptime = &uptime.Float64
		}
		if latency.Valid {
			h.AvgLatencyMs = &latency.Float64
		}
		h.RecordedAt = parseTime(recordedAt)
		history = append(history, h)
	}

	return history, rows.Err()
}

// DistinctSkills enumerates every skill present in the catalog.
func (r *Repository) DistinctSkills() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT skill FROM agent_services ORDER BY skill")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate skills: %w", err)
	}
	defer rows.Close()

	var skills []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, s)
	}

	return skills, rows.Err()
}

// Count returns the catalog size.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM agent_services").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count agent services: %w", err)
	}
	return count, nil
}

// Scan helpers

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanOne(row scanner) (AgentService, error) {
	var svc AgentService
	var uptime, latency, rating sql.NullFloat64
	var reviews sql.NullInt64
	var metadata sql.NullString
	var lastUpdated, createdAt string

	err := row.Scan(&svc.AgentID, &svc.AgentName, &svc.Skill, &svc.Price, &svc.Unit,
		&svc.Currency, &uptime, &latency, &rating, &reviews, &svc.X402Endpoint,
		&svc.BazaarURL, &metadata, &lastUpdated, &createdAt)
	if err != nil {
		return svc, err
	}

	if uptime.Valid {
		svc.Uptime = &uptime.Float64
	}
	if latency.Valid {
		svc.AvgLatencyMs = &latency.Float64
	}
	if rating.Valid {
		svc.Rating = &rating.Float64
	}
	if reviews.Valid {
		count := int(reviews.Int64)
		svc.ReviewsCount = &count
	}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &svc.Metadata)
	}
	svc.LastUpdated = parseTime(lastUpdated)
	svc.CreatedAt = parseTime(createdAt)

	return svc, nil
}

func (r *Repository) scanAll(rows *sql.Rows) ([]AgentService, error) {
	var services []AgentService
	for rows.Next() {
		svc, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// Helper functions

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
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
