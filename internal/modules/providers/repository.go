package providers

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles provider and service database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new provider repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "providers").Logger(),
	}
}

// GetAll lists providers, optionally narrowed to those offering a
// category and sorted by their cheapest current price.
func (r *Repository) GetAll(category, sortByPrice string) ([]Listing, error) {
	query := `
		SELECT p.id, p.name, COALESCE(p.url, ''), COALESCE(p.type, ''),
		       p.created_at, p.updated_at,
		       COUNT(DISTINCT s.id),
		       MIN(rt.price)
		FROM providers p
		LEFT JOIN services s ON s.provider_id = p.id
		LEFT JOIN rates rt ON rt.service_id = s.id
		WHERE (? = '' OR s.category = ?)
		GROUP BY p.id
	`

	switch sortByPrice {
	case "asc":
		query += " ORDER BY MIN(rt.price) ASC"
	case "desc":
		query += " ORDER BY MIN(rt.price) DESC"
	default:
		query += " ORDER BY p.name ASC"
	}

	rows, err := r.db.Query(query, category, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		var createdAt, updatedAt string
		var minPrice sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.Name, &l.URL, &l.Type, &createdAt, &updatedAt,
			&l.ServiceCount, &minPrice); err != nil {
			return nil, fmt.Errorf("failed to scan provider listing: %w", err)
		}
		l.CreatedAt = parseTime(createdAt)
		l.UpdatedAt = parseTime(updatedAt)
		if minPrice.Valid {
			l.MinPrice = &minPrice.Float64
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// GetByID returns a provider with its services and current rates, or nil
// when it does not exist.
func (r *Repository) GetByID(id int64) (*Detail, error) {
	var d Detail
	var createdAt, updatedAt string
	err := r.db.QueryRow(`
		SELECT id, name, COALESCE(url, ''), COALESCE(type, ''), created_at, updated_at
		FROM providers WHERE id = ?`, id).Scan(
		&d.ID, &d.Name, &d.URL, &d.Type, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)

	rows, err := r.db.Query(`
		SELECT s.id, s.category, COALESCE(s.subcategory, ''), COALESCE(s.description, ''),
		       rt.price, COALESCE(rt.currency, ''), COALESCE(rt.unit, '')
		FROM services s
		LEFT JOIN rates rt ON rt.service_id = s.id
		WHERE s.provider_id = ?
		ORDER BY s.category, s.subcategory`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sr ServiceRate
		var price sql.NullFloat64
		if err := rows.Scan(&sr.ServiceID, &sr.Category, &sr.Subcategory, &sr.Description,
			&price, &sr.Currency, &sr.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan service rate: %w", err)
		}
		if price.Valid {
			sr.Price = &price.Float64
		}
		d.Services = append(d.Services, sr)
	}

	return &d, rows.Err()
}

// GetByName resolves a provider by its unique name, or nil when missing.
func (r *Repository) GetByName(name string) (*Provider, error) {
	var p Provider
	var createdAt, updatedAt string
	err := r.db.QueryRow(`
		SELECT id, name, COALESCE(url, ''), COALESCE(type, ''), created_at, updated_at
		FROM providers WHERE name = ?`, name).Scan(
		&p.ID, &p.Name, &p.URL, &p.Type, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider by name: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// Create inserts a new provider and returns its id.
func (r *Repository) Create(name, url, providerType string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.db.Exec(`
		INSERT INTO providers (name, url, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, name, url, providerType, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create provider: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read provider id: %w", err)
	}

	r.log.Info().Str("name", name).Int64("id", id).Msg("Provider created")
	return id, nil
}

// ResolveOrCreate returns the id of the named provider, creating it when
// missing and touching updated_at when present.
func (r *Repository) ResolveOrCreate(name, url, providerType string) (int64, error) {
	existing, err := r.GetByName(name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := r.db.Exec("UPDATE providers SET updated_at = ? WHERE id = ?", now, existing.ID); err != nil {
			return 0, fmt.Errorf("failed to touch provider: %w", err)
		}
		return existing.ID, nil
	}
	return r.Create(name, url, providerType)
}

// GetOrCreateService resolves a service by (provider, category,
// subcategory), creating it when missing.
func (r *Repository) GetOrCreateService(providerID int64, category, subcategory, description string) (int64, error) {
	var id int64
	err := r.db.QueryRow(`
		SELECT id FROM services
		WHERE provider_id = ? AND category = ? AND COALESCE(subcategory, '') = ?`,
		providerID, category, subcategory).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to resolve service: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO services (provider_id, category, subcategory, description)
		VALUES (?, ?, ?, ?)`,
		providerID, category, nullString(subcategory), nullString(description))
	if err != nil {
		return 0, fmt.Errorf("failed to create service: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read service id: %w", err)
	}
	return id, nil
}

// Compare returns the current price per provider for a category,
// cheapest first. An empty providerNames compares everyone.
func (r *Repository) Compare(category, subcategory string, providerNames []string) ([]Comparison, error) {
	query := `
		SELECT p.name, s.id, s.category, COALESCE(s.subcategory, ''),
		       rt.price, rt.currency, rt.unit
		FROM rates rt
		JOIN services s ON s.id = rt.service_id
		JOIN providers p ON p.id = s.provider_id
		WHERE s.category = ?
		  AND (? = '' OR COALESCE(s.subcategory, '') = ?)
	`
	args := []interface{}{category, subcategory, subcategory}

	if len(providerNames) > 0 {
		placeholders := strings.Repeat("?,", len(providerNames))
		query += " AND p.name IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, name := range providerNames {
			args = append(args, name)
		}
	}
	query += " ORDER BY rt.price ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compare providers: %w", err)
	}
	defer rows.Close()

	var comparisons []Comparison
	for rows.Next() {
		var c Comparison
		if err := rows.Scan(&c.Provider, &c.ServiceID, &c.Category, &c.Subcategory,
			&c.Price, &c.Currency, &c.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		comparisons = append(comparisons, c)
	}

	return comparisons, rows.Err()
}

// MostRecentRate returns the newest rate row across all of a provider's
// services, or nil when the provider has none.
func (r *Repository) MostRecentRate(providerName string) (*CurrentRate, error) {
	var c CurrentRate
	var subcategory sql.NullString
	var createdAt string
	err := r.db.QueryRow(`
		SELECT p.name, rt.price, s.category, s.subcategory, rt.unit, rt.created_at
		FROM rates rt
		JOIN services s ON s.id = rt.service_id
		JOIN providers p ON p.id = s.provider_id
		WHERE p.name = ?
		ORDER BY rt.created_at DESC, rt.id DESC
		LIMIT 1`, providerName).Scan(
		&c.Provider, &c.Price, &c.Category, &subcategory, &c.Unit, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get most recent rate: %w", err)
	}
	if subcategory.Valid {
		c.Subcategory = subcategory.String
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// CountProviders reports whether the store has been seeded yet.
func (r *Repository) CountProviders() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM providers").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count providers: %w", err)
	}
	return count, nil
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

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
