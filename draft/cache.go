package draft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
)

// CacheConfig sets the two lookup tiers and the expiry.
type CacheConfig struct {
	Small int
	Large int
	TTL   time.Duration
}

// DefaultCacheConfig searches the 10 newest drafts, then 50, and keeps the
// result for five minutes.
var DefaultCacheConfig = CacheConfig{Small: 10, Large: 50, TTL: 5 * time.Minute}

// Cache maps normalized subjects to drafts listed from the gateway. It is
// filled with the small tier first and rebuilt once with the large tier on a
// miss.
type Cache struct {
	gw     gateway.Gateway
	clock  clock.Clock
	cfg    CacheConfig
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]model.Draft
	filledAt time.Time
	expanded bool
}

func NewCache(gw gateway.Gateway, clk clock.Clock, cfg CacheConfig, logger *slog.Logger) *Cache {
	if cfg.Small <= 0 {
		cfg.Small = DefaultCacheConfig.Small
	}
	if cfg.Large < cfg.Small {
		cfg.Large = cfg.Small
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig.TTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{gw: gw, clock: clk, cfg: cfg, logger: logger}
}

// Lookup finds the draft whose subject matches.
func (c *Cache) Lookup(ctx context.Context, subject string) (model.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeSubject(subject)
	if c.stale() {
		if err := c.fill(ctx, c.cfg.Small); err != nil {
			return model.Draft{}, err
		}
		c.expanded = false
	}
	if d, ok := c.entries[key]; ok {
		return d, nil
	}

	if !c.expanded && c.cfg.Large > c.cfg.Small {
		c.logger.Debug("draft not in recent drafts, expanding search", "subject", subject, "limit", c.cfg.Large)
		if err := c.fill(ctx, c.cfg.Large); err != nil {
			return model.Draft{}, err
		}
		c.expanded = true
		if d, ok := c.entries[key]; ok {
			return d, nil
		}
	}
	return model.Draft{}, fmt.Errorf("%w: %q", ErrDraftNotFound, subject)
}

// Invalidate drops the cached drafts.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = nil
	c.expanded = false
	c.mu.Unlock()
}

func (c *Cache) stale() bool {
	return len(c.entries) == 0 || c.clock.Now().Sub(c.filledAt) >= c.cfg.TTL
}

func (c *Cache) fill(ctx context.Context, limit int) error {
	drafts, err := c.gw.ListDrafts(ctx, limit)
	if err != nil {
		return fmt.Errorf("list drafts: %w", err)
	}
	entries := make(map[string]model.Draft, len(drafts))
	for _, d := range drafts {
		key := normalizeSubject(d.Subject)
		if key == "" {
			continue
		}
		// Newest first: keep the first draft per subject.
		if _, exists := entries[key]; !exists {
			entries[key] = d
		}
	}
	c.entries = entries
	c.filledAt = c.clock.Now()
	return nil
}
