// Package config handles application configuration: YAML with
// environment-variable interpolation, plus validation of everything
// the scheduler and exchange adapters need before they can start.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	App       AppConfig                 `yaml:"app"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	System    SystemConfig              `yaml:"system"`
	Store     StoreConfig               `yaml:"store"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
}

// AppConfig contains scheduler-level settings (spec.md §6.4 and §4.7).
type AppConfig struct {
	EngineType              string `yaml:"engine_type" validate:"oneof=simple dbos"`
	DatabaseURL             string `yaml:"database_url"`
	SchedulerIntervalSec    int    `yaml:"scheduler_interval_sec" validate:"min=1,max=59"`
	PaperTrading            bool   `yaml:"paper_trading"`
	APIEncryptionKeyHex     string `yaml:"-"` // sourced from API_ENCRYPTION_KEY only, never from YAML
}

// ExchangeConfig is the per-exchange base URL and fallback credential
// configuration (credentials normally live per-wallet, encrypted, in
// UserSettings; this is the operator-wide fallback per spec.md §4.3).
type ExchangeConfig struct {
	BaseURL             string `yaml:"base_url"`
	FallbackAPIKey      string `yaml:"-"`
	FallbackAPISecret   string `yaml:"-"`
}

// SystemConfig contains logging and process-level settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`
	ShutdownGraceSec int `yaml:"shutdown_grace_sec" validate:"min=1,max=300"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite memory"`
	DSN    string `yaml:"dsn"`
}

// TelemetryConfig contains OTel/metrics settings.
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name"`
	EnableMetrics bool   `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion, then overlays the environment variables that
// spec.md §6.4 mandates be read directly (never through YAML, so a
// committed config file can never accidentally ship a credential).
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides reads the environment variables from spec.md §6.4:
// GRID_SCHEDULER_INTERVAL_SEC, PAPER_TRADING, API_ENCRYPTION_KEY, and
// the per-exchange fallback credential pairs.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRID_SCHEDULER_INTERVAL_SEC"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.App.SchedulerIntervalSec = n
		}
	}
	if cfg.App.SchedulerIntervalSec == 0 {
		cfg.App.SchedulerIntervalSec = 1
	}
	if cfg.App.SchedulerIntervalSec > 59 {
		cfg.App.SchedulerIntervalSec = 59
	}

	if v, ok := os.LookupEnv("PAPER_TRADING"); ok {
		cfg.App.PaperTrading = strings.EqualFold(v, "true") || v == "1"
	}

	cfg.App.APIEncryptionKeyHex = os.Getenv("API_ENCRYPTION_KEY")

	if cfg.Exchanges == nil {
		cfg.Exchanges = make(map[string]ExchangeConfig)
	}
	overrideExchange(cfg, "asterdex", "API_KEY_ASTER", "API_KEY_SECRET_ASTER")
	overrideExchange(cfg, "bingx", "API_KEY_BINGX", "API_KEY_SECRET_BINGX")
}

func overrideExchange(cfg *Config, name, keyEnv, secretEnv string) {
	ex := cfg.Exchanges[name]
	if v := os.Getenv(keyEnv); v != "" {
		ex.FallbackAPIKey = v
	}
	if v := os.Getenv(secretEnv); v != "" {
		ex.FallbackAPISecret = v
	}
	cfg.Exchanges[name] = ex
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive: %s", s)
	}
	return n, nil
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.App.EngineType == "" {
		c.App.EngineType = "simple"
	}
	if c.App.EngineType != "simple" && c.App.EngineType != "dbos" {
		errs = append(errs, ValidationError{Field: "app.engine_type", Value: c.App.EngineType,
			Message: "must be one of: simple, dbos"}.Error())
	}
	if c.App.EngineType == "dbos" && c.App.DatabaseURL == "" {
		errs = append(errs, ValidationError{Field: "app.database_url",
			Message: "required when engine_type is 'dbos'"}.Error())
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", "))}.Error())
	}
	if c.System.ShutdownGraceSec == 0 {
		c.System.ShutdownGraceSec = 30
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "memory" {
		errs = append(errs, ValidationError{Field: "store.driver", Value: c.Store.Driver,
			Message: "must be one of: sqlite, memory"}.Error())
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "gridbot.db"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "gridbot"
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration, useful for tests and
// as a documented starting point for operators.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			EngineType:           "simple",
			SchedulerIntervalSec: 1,
			PaperTrading:         true,
		},
		Exchanges: map[string]ExchangeConfig{
			"asterdex": {BaseURL: "https://sapi.asterdex.com"},
			"bingx":    {BaseURL: "https://open-api.bingx.com"},
		},
		System: SystemConfig{
			LogLevel:         "INFO",
			ShutdownGraceSec: 30,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "gridbot.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "gridbot",
			EnableMetrics: true,
		},
	}
}
