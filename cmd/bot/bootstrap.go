package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"options-momentum-bot/internal/broker/brokerobs"
	"options-momentum-bot/internal/broker/paper"
	"options-momentum-bot/internal/broker/upstox"
	"options-momentum-bot/internal/broker/zerodha"
	"options-momentum-bot/internal/engine"
	"options-momentum-bot/internal/eod"
	"options-momentum-bot/internal/eod/eodobs"
	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/journal"
	"options-momentum-bot/internal/ledger"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/metrics"
	"options-momentum-bot/internal/notify"
	"options-momentum-bot/internal/runner"
	"options-momentum-bot/internal/store"
	"options-momentum-bot/internal/strikes"
	"options-momentum-bot/internal/trace"
	"options-momentum-bot/internal/tradelog"
	"options-momentum-bot/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem loads .env and brings up the logger.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initializeTracing starts the tracer once the trading mode is known.
func initializeTracing(ctx context.Context, cfg *store.Config) {
	tc := trace.ConfigFromEnv()
	tc.Mode = cfg.Mode
	if err := trace.InitWithConfig(tc); err != nil {
		logger.Warn(ctx, "Tracing disabled", "error", err)
	}
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "Config file not found, using defaults", "path", path)
		cfg = store.Default()
		err = cfg.Validate()
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.SetMode(cfg.Mode)
	return cfg, nil
}

func compressOldLogs(ctx context.Context, tl *tradelog.Log) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tl.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// venue is the data source plus whatever needs stopping at exit.
type venue struct {
	broker interfaces.Broker
	stop   func()
}

// initializeBroker picks the market data venue and, in paper mode, swaps
// its order side for the simulator.
func initializeBroker(ctx context.Context, cfg *store.Config) (venue, error) {
	var (
		live interfaces.Broker
		stop = func() {}
	)

	switch cfg.Broker {
	case "ZERODHA":
		names := map[string]string{strings.ToUpper(cfg.Underlying): cfg.Zerodha.Name}
		z, err := zerodha.NewZerodha(zerodha.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    cfg.Zerodha.Exchange,
			Names:       names,
			LiveTicks:   cfg.Zerodha.LiveTicks,
		})
		if err != nil {
			return venue{}, fmt.Errorf("zerodha: %w", err)
		}
		z.Start(ctx)
		live, stop = z, z.Stop
	default:
		token := os.Getenv("UPSTOX_ACCESS_TOKEN")
		if token == "" {
			logger.Warn(ctx, "UPSTOX_ACCESS_TOKEN is not set; market data calls will be rejected")
		}
		keys := upstox.DefaultUnderlyingKeys
		if cfg.Upstox.UnderlyingKey != "" {
			keys = map[string]string{strings.ToUpper(cfg.Underlying): cfg.Upstox.UnderlyingKey}
		}
		live = upstox.New(upstox.Config{
			BaseURL:        cfg.Upstox.BaseURL,
			AccessToken:    token,
			Timeout:        time.Duration(cfg.Upstox.TimeoutSeconds) * time.Second,
			UnderlyingKeys: keys,
			Mode:           cfg.TradingMode(),
		})
	}

	if cfg.TradingMode() == types.Paper {
		logger.Warn(ctx, "Running in PAPER mode - orders will be simulated", "broker", cfg.Broker)
		return venue{broker: brokerobs.Wrap(paper.Wrap(live)), stop: stop}, nil
	}
	logger.Warn(ctx, "Running in LIVE mode - orders go to the exchange", "broker", cfg.Broker)
	return venue{broker: brokerobs.Wrap(live), stop: stop}, nil
}

func initializeCache(ctx context.Context, cfg *store.Config) (interfaces.InstrumentCache, func(), error) {
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	if cfg.Cache.Backend == "REDIS" {
		url := os.Getenv("REDIS_URL")
		if url == "" {
			url = "redis://localhost:6379/0"
		}
		rc, err := store.NewRedisCache(ctx, url, ttl)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	}
	return store.NewFileCache(cfg.Cache.Dir, ttl), func() {}, nil
}

// initializeSinks returns every configured trade sink plus their closers.
// The journal is nil unless it is enabled and opened.
func initializeSinks(ctx context.Context, cfg *store.Config, tl *tradelog.Log, m *metrics.Metrics) ([]interfaces.TradeSink, *journal.Journal, func()) {
	sinks := []interfaces.TradeSink{tl, m}
	closers := []func(){}

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.ErrorWithErr(ctx, "Trade journal disabled", err, "path", cfg.Journal.Path)
		} else {
			jnl = j
			sinks = append(sinks, j)
			closers = append(closers, func() { _ = j.Close() })
		}
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		sinks = append(sinks, notify.NewTradeSink(notify.NewWebhook(url)))
		logger.Info(ctx, "Webhook alerts enabled")
	}

	return sinks, jnl, func() {
		for _, c := range closers {
			c()
		}
	}
}

func initializeLedger(cfg *store.Config, sinks []interfaces.TradeSink) *ledger.Ledger {
	return ledger.New(
		ledger.WithStartingBalance(cfg.Ledger.StartingBalance),
		ledger.WithSchedule(cfg.Charges),
		ledger.WithSinks(sinks...),
	)
}

func initializeSession(cfg *store.Config) (*markethours.Session, error) {
	return markethours.New(cfg.Market.Open, cfg.Market.Close, cfg.Market.Holidays)
}

// initializeRunners builds one machine and runner per configured leg.
func initializeRunners(cfg *store.Config, brk interfaces.Broker, led *ledger.Ledger, cache interfaces.InstrumentCache, session *markethours.Session, m *metrics.Metrics) ([]*runner.Runner, error) {
	selector := strikes.NewSelector(brk, cfg.Underlying)

	rc := runner.DefaultConfig()
	rc.PollInterval = cfg.PollInterval()
	rc.InitialBackoff = cfg.InitialBackoff()
	rc.MaxBackoff = cfg.MaxBackoff()
	rc.StaleAfter = cfg.StaleAfter()
	rc.MaxFailures = cfg.Rotation.MaxFailures

	var out []*runner.Runner
	for _, leg := range cfg.LegList() {
		machine, err := engine.NewMachine(cfg.LegParams(leg), brk)
		if err != nil {
			return nil, fmt.Errorf("leg %s: %w", leg, err)
		}
		out = append(out, runner.New(machine, brk, selector, led, rc,
			runner.WithCache(cache),
			runner.WithSession(session),
			runner.WithObserver(m),
		))
	}
	return out, nil
}

func initializeEOD(tl *tradelog.Log, session *markethours.Session, legs []types.Leg) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(tl, session, eod.WithLegs(legs...)))
}
