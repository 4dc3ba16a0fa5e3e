package crawler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/database"
)

// Seeder populates an empty store from the manual provider catalog so
// the first crawl cycle has providers to attach rates to. The whole
// write is one transaction.
type Seeder struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSeeder creates a seeder
func NewSeeder(db *database.DB, log zerolog.Logger) *Seeder {
	return &Seeder{
		db:  db,
		log: log.With().Str("component", "seeder").Logger(),
	}
}

// SeedIfEmpty writes the manual catalog when the providers table is
// empty. Returns true when seeding ran.
func (s *Seeder) SeedIfEmpty() (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM providers").Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check providers table: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, entry := range providerCatalog {
			res, err := tx.Exec(`
				INSERT INTO providers (name, url, type, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)`, entry.name, entry.url, entry.kind, now, now)
			if err != nil {
				return fmt.Errorf("failed to seed provider %s: %w", entry.name, err)
			}
			providerID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read seeded provider id: %w", err)
			}

			for _, rate := range entry.rates {
				svcRes, err := tx.Exec(`
					INSERT INTO services (provider_id, category, subcategory, description)
					VALUES (?, ?, ?, ?)`,
					providerID, rate.Category, nullString(rate.Subcategory), nullString(rate.Description))
				if err != nil {
					return fmt.Errorf("failed to seed service %s/%s: %w", entry.name, rate.Category, err)
				}
				serviceID, err := svcRes.LastInsertId()
				if err != nil {
					return fmt.Errorf("failed to read seeded service id: %w", err)
				}

				if _, err := tx.Exec(`
					INSERT INTO rates (service_id, price, currency, unit, pricing_type, confidence, source_count, created_at)
					VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
					serviceID, rate.Price, rate.Currency, rate.Unit,
					nullString(rate.PricingType), defaultConfidence, now); err != nil {
					return fmt.Errorf("failed to seed rate for %s/%s: %w", entry.name, rate.Category, err)
				}

				if _, err := tx.Exec(`
					INSERT INTO rate_history (service_id, price, currency, unit, recorded_at)
					VALUES (?, ?, ?, ?, ?)`,
					serviceID, rate.Price, rate.Currency, rate.Unit, now); err != nil {
					return fmt.Errorf("failed to seed rate history for %s/%s: %w", entry.name, rate.Category, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.log.Info().Int("providers", len(providerCatalog)).Msg("Store seeded from manual catalog")
	return true, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
