package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudportal/projectd/internal/metrics"
)

const keyDateLayout = "2006-Jan-02"

// Key returns the cache key for a tenant and window. Bounds are truncated to
// the day, so lookups within the same day collide.
func Key(tenantID string, start, end time.Time) string {
	return fmt.Sprintf("compute_usage.%s.%s-%s",
		tenantID, start.Format(keyDateLayout), end.Format(keyDateLayout))
}

// Cache memoizes usage reports in a Store. Store failures never surface:
// a failed read is a miss and a failed write is dropped.
type Cache struct {
	store  Store
	logger *slog.Logger
}

// NewCache creates a usage cache on top of store.
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{store: store, logger: logger}
}

// Get returns the cached report and whether one was found.
func (c *Cache) Get(ctx context.Context, tenantID string, start, end time.Time) ([]ServerUsage, bool) {
	key := Key(tenantID, start, end)
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.UsageCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("usage cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		metrics.UsageCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var list []ServerUsage
	if err := json.Unmarshal(data, &list); err != nil {
		metrics.UsageCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("usage cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	metrics.UsageCacheLookups.WithLabelValues("hit").Inc()
	return list, true
}

// Set stores a report for ttl.
func (c *Cache) Set(ctx context.Context, tenantID string, start, end time.Time, list []ServerUsage, ttl time.Duration) {
	key := Key(tenantID, start, end)
	data, err := json.Marshal(list)
	if err != nil {
		c.logger.Warn("usage cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("usage cache write failed", "key", key, "error", err)
	}
}
