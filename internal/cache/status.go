package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagelink/rentops/internal/domain"
)

// StatusCache caches per-company inventory status snapshots in Redis. All
// methods are nil-receiver safe so the cache can be disabled by wiring a nil
// pointer; reads then miss and writes are no-ops.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatusCache creates a status snapshot cache with the given TTL.
func NewStatusCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatusCache {
	return &StatusCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func statusKey(companyID string, page, perPage int) string {
	return fmt.Sprintf("rentops:status:%s:%d:%d", companyID, page, perPage)
}

func invalidationPattern(companyID string) string {
	return fmt.Sprintf("rentops:status:%s:*", companyID)
}

// Snapshot is the cached form of a status page.
type Snapshot struct {
	Items      []domain.ItemStatus `json:"items"`
	TotalCount int                 `json:"total_count"`
}

// Get returns a cached snapshot, or nil on a miss. Redis errors are logged
// and treated as misses.
func (c *StatusCache) Get(ctx context.Context, companyID string, page, perPage int) *Snapshot {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, statusKey(companyID, page, perPage)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "status cache read failed",
				slog.String("company_id", companyID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.WarnContext(ctx, "status cache entry corrupt, discarding",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return &snap
}

// Set stores a snapshot. Failures are logged, never returned.
func (c *StatusCache) Set(ctx context.Context, companyID string, page, perPage int, snap *Snapshot) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.WarnContext(ctx, "status cache marshal failed", slog.String("error", err.Error()))
		return
	}

	if err := c.client.Set(ctx, statusKey(companyID, page, perPage), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "status cache write failed",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops all cached status pages for a company. Called after any
// occupancy change commits.
func (c *StatusCache) Invalidate(ctx context.Context, companyID string) {
	if c == nil || c.client == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, invalidationPattern(companyID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "status cache scan failed",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return
	}

	if len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WarnContext(ctx, "status cache invalidation failed",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
	}
}
