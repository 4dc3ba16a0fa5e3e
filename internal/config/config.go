// Package config provides configuration management functionality.
//
// Configuration is loaded from environment variables (.env file supported
// via godotenv). Cron expressions are validated by the scheduler at
// startup; invalid expressions are fatal there, not here.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// Logging
	LogLevel string

	// Schedules (standard 5-field cron expressions)
	CrawlSchedule    string
	AlertSchedule    string
	ForecastSchedule string

	// Bazaar catalog ingestion
	BazaarURL      string
	BazaarMockPath string

	// SMTP transport for email notifications. Empty host or user makes
	// email dispatch a no-op that reports failure (non-fatal).
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// AI provider keys enabling the smart-router collaborator.
	// Absence disables the router, it is never fatal.
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Payment collaborator (passed through to middleware, unused by core)
	WalletAddress string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvAsInt("PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		DatabasePath:     getEnv("DATABASE_PATH", "./data/oracle.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CrawlSchedule:    getEnv("CRAWL_SCHEDULE", "*/5 * * * *"),
		AlertSchedule:    getEnv("ALERT_SCHEDULE", "*/5 * * * *"),
		ForecastSchedule: getEnv("FORECAST_SCHEDULE", "0 2 * * *"),
		BazaarURL:        getEnv("BAZAAR_URL", "https://bazaar.x402.org/catalog"),
		BazaarMockPath:   getEnv("BAZAAR_MOCK_PATH", "./data/bazaar_catalog.json"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPass:         getEnv("SMTP_PASS", ""),
		SMTPFrom:         getEnv("SMTP_FROM", "alerts@agora-oracle.local"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		WalletAddress:    getEnv("WALLET_ADDRESS", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Port)
	}
	return nil
}

// SMTPConfigured reports whether the email transport has credentials.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
