package agents

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles agent account database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new agent repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "agents").Logger(),
	}
}

// Create mints an account with a fresh opaque API key.
func (r *Repository) Create(name string) (Agent, error) {
	now := time.Now().UTC()
	apiKey := uuid.New().String()

	res, err := r.db.Exec(
		"INSERT INTO agents (name, api_key, created_at) VALUES (?, ?, ?)",
		name, apiKey, now.Format(time.RFC3339))
	if err != nil {
		return Agent{}, fmt.Errorf("failed to create agent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Agent{}, fmt.Errorf("failed to read agent id: %w", err)
	}

	r.log.Info().Int64("agent_id", id).Str("name", name).Msg("Agent created")

	return Agent{ID: id, Name: name, APIKey: apiKey, CreatedAt: now}, nil
}

// GetByAPIKey resolves an account from its API key, or nil when the key
// is unknown.
func (r *Repository) GetByAPIKey(apiKey string) (*Agent, error) {
	var a Agent
	var createdAt string
	err := r.db.QueryRow(
		"SELECT id, name, created_at FROM agents WHERE api_key = ?", apiKey).Scan(
		&a.ID, &a.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by api key: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// GetByID returns an account without its key, or nil when missing.
func (r *Repository) GetByID(id int64) (*Agent, error) {
	var a Agent
	var createdAt string
	err := r.db.QueryRow(
		"SELECT id, name, created_at FROM agents WHERE id = ?", id).Scan(
		&a.ID, &a.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ValidateKey checks that an API key belongs to the given agent id.
func (r *Repository) ValidateKey(agentID int64, apiKey string) (bool, error) {
	agent, err := r.GetByAPIKey(apiKey)
	if err != nil {
		return false, err
	}
	return agent != nil && agent.ID == agentID, nil
}

// List returns all accounts, API keys omitted.
func (r *Repository) List() ([]Agent, error) {
	rows, err := r.db.Query("SELECT id, name, created_at FROM agents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var accounts []Agent
	for rows.Next() {
		var a Agent
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
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
