package bootstrap

import (
	"fmt"

	"gridbot/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation.
func checkPreFlight(cfg *Config) error {
	if cfg.App.EngineType == "dbos" && cfg.App.DatabaseURL == "" {
		return fmt.Errorf("database_url is required when engine_type is 'dbos'")
	}

	if !cfg.App.PaperTrading {
		if cfg.App.APIEncryptionKeyHex == "" {
			return fmt.Errorf("API_ENCRYPTION_KEY must be set when paper_trading is disabled")
		}
		if len(cfg.App.APIEncryptionKeyHex) != 64 {
			return fmt.Errorf("API_ENCRYPTION_KEY must be 64 hex characters (32 bytes), got %d", len(cfg.App.APIEncryptionKeyHex))
		}
	}

	return nil
}
