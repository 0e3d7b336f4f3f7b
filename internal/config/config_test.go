package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
		{
			name:  "mixed static and env vars",
			input: "static_value: 123\napi_key: ${TEST_KEY}",
			envVars: map[string]string{
				"TEST_KEY": "dynamic_key",
			},
			expected: "static_value: 123\napi_key: dynamic_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  engine_type: "simple"
  scheduler_interval_sec: 1
  paper_trading: true

exchanges:
  asterdex:
    base_url: "${TEST_ASTER_BASE_URL}"

system:
  log_level: "INFO"
  shutdown_grace_sec: 30

store:
  driver: "memory"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_ASTER_BASE_URL", "https://sapi.asterdex.com")
	defer os.Unsetenv("TEST_ASTER_BASE_URL")

	cfg, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, "https://sapi.asterdex.com", cfg.Exchanges["asterdex"].BaseURL)
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("GRID_SCHEDULER_INTERVAL_SEC", "5")
	os.Setenv("PAPER_TRADING", "false")
	os.Setenv("API_KEY_ASTER", "env-key")
	os.Setenv("API_KEY_SECRET_ASTER", "env-secret")
	defer os.Unsetenv("GRID_SCHEDULER_INTERVAL_SEC")
	defer os.Unsetenv("PAPER_TRADING")
	defer os.Unsetenv("API_KEY_ASTER")
	defer os.Unsetenv("API_KEY_SECRET_ASTER")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	assert.Equal(t, 5, cfg.App.SchedulerIntervalSec)
	assert.False(t, cfg.App.PaperTrading)
	assert.Equal(t, "env-key", cfg.Exchanges["asterdex"].FallbackAPIKey)
	assert.Equal(t, "env-secret", cfg.Exchanges["asterdex"].FallbackAPISecret)
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "simple", cfg.App.EngineType)
	assert.Equal(t, "INFO", cfg.System.LogLevel)
	assert.Equal(t, 30, cfg.System.ShutdownGraceSec)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gridbot.db", cfg.Store.DSN)
	assert.Equal(t, "gridbot", cfg.Telemetry.ServiceName)
}

func TestConfig_Validate_RejectsBadEngineType(t *testing.T) {
	cfg := &Config{App: AppConfig{EngineType: "quantum"}}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_DBOSRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{App: AppConfig{EngineType: "dbos"}}
	assert.Error(t, cfg.Validate())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.App.PaperTrading)
	assert.Equal(t, 1, cfg.App.SchedulerIntervalSec)
}
