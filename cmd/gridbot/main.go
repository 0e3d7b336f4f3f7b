// Command gridbot runs the GRID scheduler against one of sqlite or
// in-memory storage, live or paper trading, and the simple or durable
// engine, per config file + environment overrides (spec.md §6.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/exchange/aster"
	"gridbot/exchange/bingx"
	"gridbot/exchange/paper"
	"gridbot/gridengine"
	"gridbot/internal/bootstrap"
	"gridbot/internal/config"
	"gridbot/pkg/logging"
	"gridbot/pkg/telemetry"
	"gridbot/pricefeed"
	"gridbot/scheduler"
	"gridbot/store"
	"gridbot/store/memory"
	"gridbot/store/sqlite"
	"gridbot/walletview"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gridbot:", err)
		os.Exit(1)
	}

	tel, err := telemetry.Setup(app.Cfg.Telemetry.ServiceName)
	if err != nil {
		app.Logger.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			app.Logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	if err := run(app); err != nil {
		app.Logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(app *bootstrap.App) error {
	cfg := app.Cfg
	logger := app.Logger

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return fmt.Errorf("exchange adapters: %w", err)
	}

	wallets := walletview.New(cfg.App.PaperTrading)
	feed := pricefeed.New(logger)
	engine := gridengine.New(st, adapters, wallets, logger)

	interval := time.Duration(cfg.App.SchedulerIntervalSec) * time.Second
	if interval <= 0 {
		interval = scheduler.IntervalFromEnv()
	}

	var runner bootstrap.Runner
	switch cfg.App.EngineType {
	case "dbos":
		// The construction API for dbos.DBOSContext is not shown anywhere
		// in the retrieval pack (the teacher only ever receives an
		// already-built one); this call is a best-effort shape consistent
		// with the package's Config fields, documented in DESIGN.md.
		dbosCtx, err := dbos.NewDBOSContext(dbos.Config{
			AppName:     cfg.Telemetry.ServiceName,
			DatabaseURL: cfg.App.DatabaseURL,
		})
		if err != nil {
			return fmt.Errorf("dbos context: %w", err)
		}
		runner = scheduler.NewDurable(dbosCtx, st, engine, feed, wallets, adapters, interval, logger)
	default:
		runner = scheduler.NewSimple(st, engine, feed, wallets, adapters, interval, logger)
	}

	return app.Run(runner)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	default:
		return sqlite.Open(cfg.DSN)
	}
}

// buildAdapters constructs one exchange.Adapter per known exchange.
// Paper trading swaps every live adapter for a paper.Broker so no real
// credentials or orders are ever required (spec.md §4.2/§6.4).
func buildAdapters(cfg *config.Config, logger logging.ILogger) (map[domain.Exchange]exchange.Adapter, error) {
	if cfg.App.PaperTrading {
		return map[domain.Exchange]exchange.Adapter{
			domain.ExchangeAster: paper.New(domain.ExchangeAster),
			domain.ExchangeBingX: paper.New(domain.ExchangeBingX),
		}, nil
	}

	var encryptionKey []byte
	if cfg.App.APIEncryptionKeyHex != "" {
		key, err := config.EncryptionKeyFromHex(cfg.App.APIEncryptionKeyHex)
		if err != nil {
			return nil, fmt.Errorf("API_ENCRYPTION_KEY: %w", err)
		}
		encryptionKey = key
	}

	asterCfg := cfg.Exchanges["asterdex"]
	bingxCfg := cfg.Exchanges["bingx"]

	return map[domain.Exchange]exchange.Adapter{
		domain.ExchangeAster: aster.New(asterCfg.BaseURL, exchange.Credentials{
			APIKey: asterCfg.FallbackAPIKey, APISecret: asterCfg.FallbackAPISecret,
		}, encryptionKey, logger),
		domain.ExchangeBingX: bingx.New(bingxCfg.BaseURL, exchange.Credentials{
			APIKey: bingxCfg.FallbackAPIKey, APISecret: bingxCfg.FallbackAPISecret,
		}, encryptionKey, logger),
	}, nil
}
