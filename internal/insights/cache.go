package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/ingest"
	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
)

// SnapshotCache stores successful FetchResults in Redis so comparison
// windows and repeated queries within the TTL don't refetch from the
// warehouse. Cached results keep their original request identity, which
// preserves hydration idempotence downstream. Cache failures are treated
// as misses; Redis being down never fails a query.
type SnapshotCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSnapshotCache builds a cache. metrics may be nil.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl, logger: logger, metrics: m}
}

// Get returns the cached FetchResult for q, or nil on a miss.
func (c *SnapshotCache) Get(ctx context.Context, q ingest.Query) *models.FetchResult {
	raw, err := c.client.Get(ctx, snapshotKey(q)).Bytes()
	if err == redis.Nil {
		c.record("miss")
		return nil
	}
	if err != nil {
		c.record("error")
		c.logger.Warn("snapshot cache read failed", zap.Error(err))
		return nil
	}
	var fr models.FetchResult
	if err := json.Unmarshal(raw, &fr); err != nil {
		c.record("error")
		c.logger.Warn("snapshot cache entry corrupt, ignoring", zap.Error(err))
		return nil
	}
	c.record("hit")
	return &fr
}

// Put stores fr under its query key. Best effort.
func (c *SnapshotCache) Put(ctx context.Context, q ingest.Query, fr *models.FetchResult) {
	raw, err := json.Marshal(fr)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(q), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", zap.Error(err))
	}
}

func (c *SnapshotCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordSnapshotCache(result)
	}
}

func snapshotKey(q ingest.Query) string {
	return fmt.Sprintf("aso:snapshot:%s:%s:%s:%s", q.OrgID, q.Range.Start, q.Range.End, appSetHash(q.AppIDs))
}

// appSetHash is order-insensitive so {a,b} and {b,a} share a key.
func appSetHash(appIDs []string) string {
	if len(appIDs) == 0 {
		return "all"
	}
	sorted := make([]string, len(appIDs))
	copy(sorted, appIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:8])
}
