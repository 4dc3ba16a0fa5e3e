package rates

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/database"
)

// Repository handles rate and rate-history database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rate repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rates").Logger(),
	}
}

// CategoryPair is one distinct (category, subcategory) combination.
type CategoryPair struct {
	Category    string
	Subcategory string
}

// GetCurrentObservations loads the latest rate per service for a
// category, optionally narrowed to a subcategory, joined to services and
// providers.
func (r *Repository) GetCurrentObservations(category, subcategory string) ([]Observation, error) {
	query := `
		SELECT r.service_id, p.name, s.category, COALESCE(s.subcategory, ''),
		       r.price, r.currency, r.unit, r.created_at
		FROM rates r
		JOIN services s ON s.id = r.service_id
		JOIN providers p ON p.id = s.provider_id
		WHERE s.category = ?
		  AND (? = '' OR COALESCE(s.subcategory, '') = ?)
		  AND r.id = (SELECT MAX(r2.id) FROM rates r2 WHERE r2.service_id = r.service_id)
		ORDER BY r.service_id ASC
	`

	rows, err := r.db.Query(query, category, subcategory, subcategory)
	if err != nil {
		return nil, fmt.Errorf("failed to get current observations: %w", err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var o Observation
		var createdAt string
		if err := rows.Scan(&o.ServiceID, &o.Provider, &o.Category, &o.Subcategory,
			&o.Price, &o.Currency, &o.Unit, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if t, ok := parseTime(createdAt); ok {
			o.RecordedAt = &t
		}
		obs = append(obs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return obs, nil
}

// DistinctCategoryPairs enumerates every (category, subcategory) pair
// present in the services table.
func (r *Repository) DistinctCategoryPairs() ([]CategoryPair, error) {
	query := `
		SELECT DISTINCT category, COALESCE(subcategory, '')
		FROM services
		ORDER BY category, subcategory
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get category pairs: %w", err)
	}
	defer rows.Close()

	var pairs []CategoryPair
	for rows.Next() {
		var p CategoryPair
		if err := rows.Scan(&p.Category, &p.Subcategory); err != nil {
			return nil, fmt.Errorf("failed to scan category pair: %w", err)
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

// LatestHistoryBefore returns the most recent history row for a service
// recorded at or before the cutoff, or nil when none exists.
func (r *Repository) LatestHistoryBefore(serviceID int64, cutoff time.Time) (*HistoryRow, error) {
	query := `
		SELECT id, service_id, price, currency, unit, recorded_at
		FROM rate_history
		WHERE service_id = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var row HistoryRow
	var recordedAt string
	err := r.db.QueryRow(query, serviceID, cutoff.UTC().Format(time.RFC3339)).Scan(
		&row.ID, &row.ServiceID, &row.Price, &row.Currency, &row.Unit, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history before cutoff: %w", err)
	}

	if t, ok := parseTime(recordedAt); ok {
		row.RecordedAt = t
	}

	return &row, nil
}

// HasRecentDuplicate reports whether an identical (service, price, unit)
// observation was already accepted within the dedup window.
func (r *Repository) HasRecentDuplicate(serviceID int64, price float64, unit string, since time.Time) (bool, error) {
	query := `
		SELECT 1 FROM rate_history
		WHERE service_id = ? AND price = ? AND unit = ? AND recorded_at >= ?
		LIMIT 1
	`

	var exists int
	err := r.db.QueryRow(query, serviceID, price, unit, since.UTC().Format(time.RFC3339)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check rate duplicate: %w", err)
	}

	return true, nil
}

// InsertObservation records an accepted observation: the current rate row
// for the service is replaced and an append-only history row written, in
// one transaction.
func (r *Repository) InsertObservation(rate Rate) error {
	now := time.Now().UTC().Format(time.RFC3339)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM rates WHERE service_id = ?", rate.ServiceID); err != nil {
			return fmt.Errorf("failed to clear previous rate: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO rates (service_id, price, currency, unit, pricing_type, confidence, source_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rate.ServiceID, rate.Price, rate.Currency, rate.Unit,
			nullString(rate.PricingType), rate.Confidence, rate.SourceCount, now,
		); err != nil {
			return fmt.Errorf("failed to insert rate: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO rate_history (service_id, price, currency, unit, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			rate.ServiceID, rate.Price, rate.Currency, rate.Unit, now,
		); err != nil {
			return fmt.Errorf("failed to insert rate history: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Int64("service_id", rate.ServiceID).
		Float64("price", rate.Price).
		Str("unit", rate.Unit).
		Msg("Rate observation recorded")

	return nil
}

// InsertHistoryAt writes a bare history row with an explicit timestamp.
// Used by tests and backfills; the crawl path goes through
// InsertObservation.
func (r *Repository) InsertHistoryAt(serviceID int64, price float64, currency, unit string, recordedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO rate_history (service_id, price, currency, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		serviceID, price, currency, unit, recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// DailyAverages groups history for a category (and optional subcategory)
// into per-day AVG(price) over the trailing window.
func (r *Repository) DailyAverages(category, subcategory string, days int) ([]DailyPrice, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `
		SELECT substr(h.recorded_at, 1, 10) AS day, AVG(h.price)
		FROM rate_history h
		JOIN services s ON s.id = h.service_id
		WHERE s.category = ?
		  AND (? = '' OR COALESCE(s.subcategory, '') = ?)
		  AND h.recorded_at >= ?
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.Query(query, category, subcategory, subcategory, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily averages: %w", err)
	}
	defer rows.Close()

	var series []DailyPrice
	for rows.Next() {
		var d DailyPrice
		if err := rows.Scan(&d.Day, &d.AvgPrice); err != nil {
			return nil, fmt.Errorf("failed to scan daily average: %w", err)
		}
		series = append(series, d)
	}

	return series, rows.Err()
}

// CategoryVolatility is the dispersion of a category's recent history.
type CategoryVolatility struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Volatility  float64 `json:"volatility"` // std_dev / mean
	Samples     int     `json:"samples"`
}

// HistoryPrices returns the raw history prices for a category pair within
// the trailing window, oldest first.
func (r *Repository) HistoryPrices(category, subcategory string, days int) ([]float64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `
		SELECT h.price
		FROM rate_history h
		JOIN services s ON s.id = h.service_id
		WHERE s.category = ?
		  AND (? = '' OR COALESCE(s.subcategory, '') = ?)
		  AND h.recorded_at >= ?
		ORDER BY h.recorded_at ASC
	`

	rows, err := r.db.Query(query, category, subcategory, subcategory, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get history prices: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan history price: %w", err)
		}
		prices = append(prices, p)
	}

	return prices, rows.Err()
}

// Counts returns table totals for the stats surface.
func (r *Repository) Counts() (providers, services, rateRows, historyRows int, err error) {
	row := r.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM providers),
			(SELECT COUNT(*) FROM services),
			(SELECT COUNT(*) FROM rates),
			(SELECT COUNT(*) FROM rate_history)
	`)
	if err := row.Scan(&providers, &services, &rateRows, &historyRows); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to count store rows: %w", err)
	}
	return providers, services, rateRows, historyRows, nil
}

// Helper functions

// parseTime accepts the two timestamp formats present in the store:
// RFC3339 written by Go and "YYYY-MM-DD HH:MM:SS" written by SQLite
// defaults.
func parseTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
