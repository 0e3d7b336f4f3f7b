package bootstrap

import (
	"gridbot/pkg/logging"
)

// InitLogger builds the zap-backed logger at the configured level and
// installs it as the package-global logger for components that don't
// receive one explicitly.
func InitLogger(cfg *Config) logging.ILogger {
	level, err := logging.ParseLevel(cfg.System.LogLevel)
	if err != nil {
		level = logging.InfoLevel
	}

	logger := logging.NewLogger(level).WithField("app", "gridbot")
	logging.SetGlobalLogger(logger)
	return logger
}
