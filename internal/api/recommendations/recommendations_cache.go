package recommendations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/go-poi-recommendations/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const (
	DefaultCacheTTL         = 6 * time.Hour
	DefaultDegradedCacheTTL = 5 * time.Minute
)

// errComputeAbandoned marks a shared computation whose waiters all left.
var errComputeAbandoned = errors.New("recommendation computation abandoned")

// CacheBackend stores whole recommendation sets.
type CacheBackend interface {
	Get(ctx context.Context, key string) (types.RecommendationSet, bool, error)
	Set(ctx context.Context, key string, set types.RecommendationSet, ttl time.Duration) error
}

var (
	_ CacheBackend = (*MemoryCacheBackend)(nil)
	_ CacheBackend = (*RedisCacheBackend)(nil)
)

// MemoryCacheBackend keeps sets in process with go-cache.
type MemoryCacheBackend struct {
	c *cache.Cache
}

func NewMemoryCacheBackend(defaultTTL, cleanupInterval time.Duration) *MemoryCacheBackend {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &MemoryCacheBackend{c: cache.New(defaultTTL, cleanupInterval)}
}

func (m *MemoryCacheBackend) Get(_ context.Context, key string) (types.RecommendationSet, bool, error) {
	v, found := m.c.Get(key)
	if !found {
		return types.RecommendationSet{}, false, nil
	}
	set, ok := v.(types.RecommendationSet)
	if !ok {
		return types.RecommendationSet{}, false, fmt.Errorf("unexpected cached type %T", v)
	}
	return set, true, nil
}

func (m *MemoryCacheBackend) Set(_ context.Context, key string, set types.RecommendationSet, ttl time.Duration) error {
	m.c.Set(key, set, ttl)
	return nil
}

// RecommendationCache is a read-through cache with single-flighted misses.
type RecommendationCache struct {
	backend     CacheBackend
	ttl         time.Duration
	degradedTTL time.Duration
	group       singleflight.Group
	logger      *slog.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled when the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewRecommendationCache(backend CacheBackend, ttl, degradedTTL time.Duration, logger *slog.Logger) *RecommendationCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if degradedTTL <= 0 {
		degradedTTL = DefaultDegradedCacheTTL
	}
	return &RecommendationCache{
		backend:     backend,
		ttl:         ttl,
		degradedTTL: degradedTTL,
		logger:      logger,
		flights:     make(map[string]*flight),
	}
}

// GetOrCompute returns the cached set for key, or computes and stores it.
// refresh skips the read but still stores the fresh result. Concurrent misses
// for the same key share one computation, which is cancelled once every
// waiting caller has gone. A caller whose ctx ends first gets ctx.Err().
func (c *RecommendationCache) GetOrCompute(ctx context.Context, key string, refresh bool, compute func(ctx context.Context) types.RecommendationSet) (types.RecommendationSet, bool, error) {
	m := metrics.Get()
	if !refresh {
		set, found, err := c.backend.Get(ctx, key)
		if err != nil {
			c.logger.WarnContext(ctx, "Recommendation cache read failed", slog.String("stage", "cache"), slog.Any("error", err))
		}
		if found {
			m.CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
			return set, true, nil
		}
		m.CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))
	} else {
		m.CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "refresh")))
	}

	f := c.join(ctx, key)
	ch := c.group.DoChan(key, func() (any, error) {
		set := compute(f.ctx)
		if f.ctx.Err() != nil {
			// Partial results from an abandoned run are never stored.
			return set, errComputeAbandoned
		}
		ttl := c.ttl
		if set.FullyStatic() {
			ttl = c.degradedTTL
		}
		if err := c.backend.Set(context.WithoutCancel(f.ctx), key, set, ttl); err != nil {
			c.logger.WarnContext(ctx, "Recommendation cache write failed", slog.String("stage", "cache"), slog.Any("error", err))
		}
		return set, nil
	})

	select {
	case <-ctx.Done():
		c.leave(key, f)
		c.logger.DebugContext(ctx, "Caller left before the recommendation set was ready",
			slog.String("stage", "cache"), slog.Any("error", ctx.Err()))
		return types.RecommendationSet{}, false, ctx.Err()
	case res := <-ch:
		c.leave(key, f)
		if res.Err != nil {
			if err := ctx.Err(); err != nil {
				return types.RecommendationSet{}, false, err
			}
			return compute(ctx), false, nil
		}
		return res.Val.(types.RecommendationSet), false, nil
	}
}

func (c *RecommendationCache) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *RecommendationCache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
		// Later callers start a fresh run instead of joining the cancelled one.
		c.group.Forget(key)
	}
}

// CacheKey hashes the normalized trip. Style tags and visited places are
// order-insensitive.
func CacheKey(trip types.TripContext) string {
	var b strings.Builder
	b.WriteString(types.NormalizeText(trip.Destination))
	b.WriteByte(0)
	b.WriteString(strings.Join(normalizedSet(trip.StyleTags), "\x1f"))
	b.WriteByte(0)
	b.WriteString(strings.Join(normalizedSet(trip.VisitedPlaceNames), "\x1f"))
	if g := trip.GeoBias; g != nil {
		b.WriteByte(0)
		b.WriteString(strconv.FormatFloat(g.Latitude, 'f', 5, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(g.Longitude, 'f', 5, 64))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(g.RadiusMeters))
	}
	return fmt.Sprintf("rec:%016x", xxhash.Sum64String(b.String()))
}
