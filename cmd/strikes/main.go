// Command strikes prints the strikes the bot would pick for a premium band.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"options-momentum-bot/internal/broker/upstox"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/store"
	"options-momentum-bot/internal/strikes"
	"options-momentum-bot/internal/types"
)

func main() {
	_ = godotenv.Load()
	_ = logger.Init()

	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	lower := flag.Float64("lower", 0, "lower premium bound (defaults to strategy.lower_bound)")
	upper := flag.Float64("upper", 0, "upper premium bound (defaults to strategy.upper_bound)")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *lower == 0 && *upper == 0 {
		*lower, *upper = cfg.Strategy.LowerBound, cfg.Strategy.UpperBound
	}

	keys := upstox.DefaultUnderlyingKeys
	if cfg.Upstox.UnderlyingKey != "" {
		keys = map[string]string{strings.ToUpper(cfg.Underlying): cfg.Upstox.UnderlyingKey}
	}
	md := upstox.New(upstox.Config{
		BaseURL:        cfg.Upstox.BaseURL,
		AccessToken:    os.Getenv("UPSTOX_ACCESS_TOKEN"),
		UnderlyingKeys: keys,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, chain, err := strikes.NewSelector(md, cfg.Underlying).Resolve(ctx, *lower, *upper)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}

	fmt.Printf("%s expiry %s band [%.2f, %.2f]\n", cfg.Underlying, res.Expiry, *lower, *upper)
	for _, ot := range []types.OptionType{types.Call, types.Put} {
		if !res.Found(ot) {
			fmt.Printf("  %s: none\n", ot)
			continue
		}
		inst, err := strikes.Instrument(chain, res.Strike(ot), ot)
		if err != nil {
			fmt.Printf("  %s: %.0f (%v)\n", ot, res.Strike(ot), err)
			continue
		}
		fmt.Printf("  %s: %.0f %s\n", ot, res.Strike(ot), inst.Key)
	}
}

// loadConfig falls back to the defaults only when the file is absent.
func loadConfig(path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = store.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
