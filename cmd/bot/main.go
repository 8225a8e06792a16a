package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/ledger"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/metrics"
	"options-momentum-bot/internal/runner"
	"options-momentum-bot/internal/server"
	"options-momentum-bot/internal/trace"
	"options-momentum-bot/internal/tradelog"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	if err := run(); err != nil {
		logger.ErrorWithErr(context.Background(), "Bot exited with error", err)
		os.Exit(1)
	}
}

func run() error {
	defaultPath := os.Getenv("BOT_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return err
	}
	initializeTracing(ctx, cfg)

	tl := tradelog.New(tradelog.LogDir())
	compressOldLogs(ctx, tl)

	session, err := initializeSession(cfg)
	if err != nil {
		return err
	}

	v, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer v.stop()

	cache, closeCache, err := initializeCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	m := metrics.New()
	sinks, jnl, closeSinks := initializeSinks(ctx, cfg, tl, m)
	defer closeSinks()

	led := initializeLedger(cfg, sinks)

	runners, err := initializeRunners(cfg, v.broker, led, cache, session, m)
	if err != nil {
		return err
	}
	group := runner.NewGroup(session, runners...)

	opts := []server.Option{
		server.WithMetrics(m.Handler()),
		server.WithMode(cfg.TradingMode()),
	}
	if jnl != nil {
		opts = append(opts, server.WithJournal(jnl))
	}
	srv := server.New(cfg.Server.Addr, led, group, session, opts...)
	summarizer := initializeEOD(tl, session, cfg.LegList())

	logger.Info(ctx, "Bot started",
		"underlying", cfg.Underlying,
		"legs", cfg.Legs,
		"broker", cfg.Broker,
		"addr", cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return group.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return daily(gctx, summarizer, led, tl, session) })

	err = g.Wait()
	logger.Info(context.Background(), "Shutting down...")
	if p, serr := summarizer.SummarizeToday(); serr == nil && p != "" {
		logger.Info(context.Background(), "EOD CSV written", "path", p)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// daily writes the end of day summary once the session closes and resets
// the ledger when the trading date rolls over.
func daily(ctx context.Context, summarizer interfaces.EodSummarizer, led *ledger.Ledger, tl *tradelog.Log, session *markethours.Session) error {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	day := time.Now().In(markethours.IST).Format("2006-01-02")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		if ok, _ := summarizer.ShouldRunNow(); ok {
			if p, err := summarizer.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
		}

		now := time.Now().In(markethours.IST)
		if today := now.Format("2006-01-02"); today != day {
			day = today
			led.ResetDay()
			compressOldLogs(ctx, tl)
			logger.Info(ctx, "New trading date", "date", day, "trading_day", session.IsTradingDay(now))
		}
	}
}
