package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/types"
)

// ErrCacheMiss is returned when no instrument is cached for a leg.
var ErrCacheMiss = errors.New("instrument not cached")

var _ interfaces.InstrumentCache = (*FileCache)(nil)

type cachedInstrument struct {
	Instrument types.Instrument `json:"instrument"`
	SavedAt    time.Time        `json:"saved_at"`
}

// FileCache keeps one instrument_data_<LEG>.json file per leg.
type FileCache struct {
	dir    string
	maxAge time.Duration
	mu     sync.Mutex
	now    func() time.Time
}

// NewFileCache stores files under dir. Entries older than maxAge are treated
// as misses; zero disables expiry.
func NewFileCache(dir string, maxAge time.Duration) *FileCache {
	return &FileCache{dir: dir, maxAge: maxAge, now: time.Now}
}

func (c *FileCache) path(leg types.Leg) string {
	return filepath.Join(c.dir, fmt.Sprintf("instrument_data_%s.json", leg))
}

func (c *FileCache) Load(_ context.Context, leg types.Leg) (types.Instrument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := os.ReadFile(c.path(leg))
	if errors.Is(err, os.ErrNotExist) {
		return types.Instrument{}, ErrCacheMiss
	}
	if err != nil {
		return types.Instrument{}, err
	}

	var ci cachedInstrument
	if err := json.Unmarshal(b, &ci); err != nil {
		return types.Instrument{}, fmt.Errorf("decode %s: %w", c.path(leg), err)
	}
	if ci.Instrument.IsZero() {
		return types.Instrument{}, ErrCacheMiss
	}
	if c.maxAge > 0 && c.now().Sub(ci.SavedAt) > c.maxAge {
		return types.Instrument{}, ErrCacheMiss
	}
	return ci.Instrument, nil
}

func (c *FileCache) Save(_ context.Context, leg types.Leg, inst types.Instrument) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cachedInstrument{Instrument: inst, SavedAt: c.now()}, "", "  ")
	if err != nil {
		return err
	}

	tmp := c.path(leg) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(leg))
}
