package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"options-momentum-bot/internal/charges"
	"options-momentum-bot/internal/engine"
	"options-momentum-bot/internal/types"
)

type Config struct {
	Mode        string   `yaml:"mode"`   // PAPER or LIVE
	Broker      string   `yaml:"broker"` // UPSTOX or ZERODHA, supplies market data and live orders
	Underlying  string   `yaml:"underlying"`
	PollSeconds float64  `yaml:"poll_seconds"`
	Legs        []string `yaml:"legs"`
	Strategy    struct {
		LowerBound     float64 `yaml:"lower_bound"`
		UpperBound     float64 `yaml:"upper_bound"`
		StopLossOffset float64 `yaml:"stop_loss_offset"`
		TrailOffset    float64 `yaml:"trail_offset"`
		TrailThreshold float64 `yaml:"trail_threshold"`
		TrailInitial   float64 `yaml:"trail_initial"`
		LotSize        int     `yaml:"lot_size"`
	} `yaml:"strategy"`
	// LegStrategy overrides strategy fields for one leg, keyed CE or PE.
	LegStrategy map[string]LegStrategy `yaml:"leg_strategy"`
	Rotation    struct {
		InitialBackoffSeconds float64 `yaml:"initial_backoff_seconds"`
		MaxBackoffSeconds     float64 `yaml:"max_backoff_seconds"`
		MaxFailures           int     `yaml:"max_failures"`
		StaleSeconds          float64 `yaml:"stale_seconds"`
	} `yaml:"rotation"`
	Market struct {
		Open     string   `yaml:"open"`
		Close    string   `yaml:"close"`
		Holidays []string `yaml:"holidays"`
	} `yaml:"market"`
	Ledger struct {
		StartingBalance float64 `yaml:"starting_balance"`
	} `yaml:"ledger"`
	Charges charges.Schedule `yaml:"charges"`
	Cache   struct {
		Backend  string `yaml:"backend"` // FILE or REDIS
		Dir      string `yaml:"dir"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"cache"`
	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Upstox struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		// UnderlyingKey overrides the index key, e.g. "NSE_INDEX|Nifty Bank".
		UnderlyingKey string `yaml:"underlying_key"`
	} `yaml:"upstox"`
	Zerodha struct {
		Exchange string `yaml:"exchange"`
		// Name is the underlying as it appears in the instrument dump, e.g.
		// BANKNIFTY for NIFTYBANK.
		Name string `yaml:"name"`
		// LiveTicks serves LTPs from the Kite ticker when fresh.
		LiveTicks bool `yaml:"live_ticks"`
	} `yaml:"zerodha"`
}

// LegStrategy holds per-leg strategy overrides. Nil fields inherit the
// shared strategy block.
type LegStrategy struct {
	LowerBound     *float64 `yaml:"lower_bound"`
	UpperBound     *float64 `yaml:"upper_bound"`
	StopLossOffset *float64 `yaml:"stop_loss_offset"`
	TrailOffset    *float64 `yaml:"trail_offset"`
	TrailThreshold *float64 `yaml:"trail_threshold"`
	TrailInitial   *float64 `yaml:"trail_initial"`
	LotSize        *int     `yaml:"lot_size"`
}

// Default returns a config populated with the stock strategy values.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = string(types.Paper)
	}
	if c.Broker == "" {
		c.Broker = "UPSTOX"
	}
	if c.Underlying == "" {
		c.Underlying = "NIFTYBANK"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 2
	}
	if len(c.Legs) == 0 {
		c.Legs = []string{string(types.Call), string(types.Put)}
	}

	s := &c.Strategy
	if s.LowerBound == 0 && s.UpperBound == 0 {
		s.LowerBound, s.UpperBound = 100, 200
	}
	if s.StopLossOffset == 0 {
		s.StopLossOffset = 20
	}
	if s.TrailOffset == 0 {
		s.TrailOffset = 3
	}
	if s.TrailThreshold == 0 {
		s.TrailThreshold = 2
	}
	if s.TrailInitial == 0 {
		s.TrailInitial = 1
	}
	if s.LotSize == 0 {
		s.LotSize = 70
	}

	r := &c.Rotation
	if r.InitialBackoffSeconds == 0 {
		r.InitialBackoffSeconds = 2
	}
	if r.MaxBackoffSeconds == 0 {
		r.MaxBackoffSeconds = 60
	}
	if r.MaxFailures == 0 {
		r.MaxFailures = 3
	}
	if r.StaleSeconds == 0 {
		r.StaleSeconds = 60
	}

	if c.Market.Open == "" {
		c.Market.Open = "09:20"
	}
	if c.Market.Close == "" {
		c.Market.Close = "15:30"
	}
	if c.Ledger.StartingBalance == 0 {
		c.Ledger.StartingBalance = 100000
	}
	if c.Charges == (charges.Schedule{}) {
		c.Charges = charges.DefaultSchedule()
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "FILE"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "."
	}
	if c.Cache.TTLHours == 0 {
		c.Cache.TTLHours = 24
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "trades.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Upstox.BaseURL == "" {
		c.Upstox.BaseURL = "https://api.upstox.com/v2"
	}
	if c.Upstox.TimeoutSeconds == 0 {
		c.Upstox.TimeoutSeconds = 15
	}
	if c.Zerodha.Exchange == "" {
		c.Zerodha.Exchange = "NFO"
	}
	if c.Zerodha.Name == "" {
		c.Zerodha.Name = "BANKNIFTY"
	}
}

func (c *Config) Validate() error {
	c.Mode = strings.ToUpper(c.Mode)
	c.Broker = strings.ToUpper(c.Broker)
	c.Cache.Backend = strings.ToUpper(c.Cache.Backend)

	if c.Mode != string(types.Paper) && c.Mode != string(types.Live) {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if c.Broker != "UPSTOX" && c.Broker != "ZERODHA" {
		return fmt.Errorf("invalid broker '%s': must be 'UPSTOX' or 'ZERODHA'", c.Broker)
	}
	if c.Underlying == "" {
		return errors.New("underlying cannot be empty")
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be > 0, got %.2f", c.PollSeconds)
	}
	for _, l := range c.Legs {
		if _, err := types.ParseOptionType(l); err != nil {
			return fmt.Errorf("legs: %w", err)
		}
	}
	if c.Rotation.MaxBackoffSeconds < c.Rotation.InitialBackoffSeconds {
		return fmt.Errorf("rotation.max_backoff_seconds (%.0f) below initial (%.0f)",
			c.Rotation.MaxBackoffSeconds, c.Rotation.InitialBackoffSeconds)
	}
	if c.Rotation.MaxFailures <= 0 {
		return fmt.Errorf("rotation.max_failures must be > 0, got %d", c.Rotation.MaxFailures)
	}
	if c.Cache.Backend != "FILE" && c.Cache.Backend != "REDIS" {
		return fmt.Errorf("cache.backend must be 'FILE' or 'REDIS', got '%s'", c.Cache.Backend)
	}
	if _, err := time.Parse("15:04", c.Market.Open); err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	if _, err := time.Parse("15:04", c.Market.Close); err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if len(c.LegStrategy) > 0 {
		byLeg := make(map[string]LegStrategy, len(c.LegStrategy))
		for k, v := range c.LegStrategy {
			leg, err := types.ParseOptionType(k)
			if err != nil {
				return fmt.Errorf("leg_strategy: %w", err)
			}
			byLeg[string(leg)] = v
		}
		c.LegStrategy = byLeg
	}
	for _, leg := range c.LegList() {
		if err := c.LegParams(leg).Validate(); err != nil {
			return fmt.Errorf("strategy %s: %w", leg, err)
		}
	}
	return nil
}

// LegList returns the configured legs, parsed.
func (c *Config) LegList() []types.Leg {
	out := make([]types.Leg, 0, len(c.Legs))
	for _, l := range c.Legs {
		if leg, err := types.ParseOptionType(l); err == nil {
			out = append(out, leg)
		}
	}
	return out
}

// LegParams builds the state machine parameters for one leg, applying any
// leg_strategy override on top of the shared strategy.
func (c *Config) LegParams(leg types.Leg) engine.Params {
	s := c.Strategy
	p := engine.Params{
		LowerBound:     s.LowerBound,
		UpperBound:     s.UpperBound,
		StopLossOffset: s.StopLossOffset,
		TrailOffset:    s.TrailOffset,
		TrailThreshold: s.TrailThreshold,
		TrailInitial:   s.TrailInitial,
		LotSize:        s.LotSize,
		OptionType:     leg,
	}
	o, ok := c.LegStrategy[string(leg)]
	if !ok {
		return p
	}
	override(&p.LowerBound, o.LowerBound)
	override(&p.UpperBound, o.UpperBound)
	override(&p.StopLossOffset, o.StopLossOffset)
	override(&p.TrailOffset, o.TrailOffset)
	override(&p.TrailThreshold, o.TrailThreshold)
	override(&p.TrailInitial, o.TrailInitial)
	override(&p.LotSize, o.LotSize)
	return p
}

func override[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) TradingMode() types.Mode { return types.Mode(c.Mode) }

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds * float64(time.Second))
}

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

func (c *Config) InitialBackoff() time.Duration { return seconds(c.Rotation.InitialBackoffSeconds) }
func (c *Config) MaxBackoff() time.Duration     { return seconds(c.Rotation.MaxBackoffSeconds) }
func (c *Config) StaleAfter() time.Duration     { return seconds(c.Rotation.StaleSeconds) }

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
