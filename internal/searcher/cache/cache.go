package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/resilience"
)

const (
	keyPrefix        = "search:"
	defaultLocalSize = 1024
)

// Remote is a shared second-tier store. pkg/redis.Client implements it.
type Remote interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Option func(*QueryCache)

// WithRemote adds a second tier behind a circuit breaker. Entries expire
// after ttl; zero keeps them until Invalidate.
func WithRemote(remote Remote, ttl time.Duration) Option {
	return func(c *QueryCache) {
		c.remote = remote
		c.ttl = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

// QueryCache memoizes search results per index generation. Keys embed the
// generation, so a rebuild makes every older entry unreachable.
type QueryCache struct {
	local   *lru.Cache[string, *executor.SearchResult]
	remote  Remote
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	LocalSize   int    `json:"local_size"`
	Remote      bool   `json:"remote"`
	RemoteState string `json:"remote_state,omitempty"`
	// RemoteErrors counts failed remote calls; RemoteSkipped counts calls the
	// open breaker refused.
	RemoteErrors  int64 `json:"remote_errors,omitempty"`
	RemoteSkipped int64 `json:"remote_skipped,omitempty"`
}

// New returns a cache holding at most size results in process. size <= 0
// uses the default.
func New(size int, opts ...Option) *QueryCache {
	if size <= 0 {
		size = defaultLocalSize
	}
	local, err := lru.New[string, *executor.SearchResult](size)
	if err != nil {
		panic(fmt.Sprintf("cache: creating lru: %v", err))
	}
	c := &QueryCache{
		local:  local,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.remote != nil {
		cfg := resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
		}
		if c.metrics != nil {
			gauge := c.metrics.CircuitBreakerState
			cfg.OnStateChange = func(name string, _, to resilience.State) {
				gauge.WithLabelValues(name).Set(float64(to))
			}
		}
		c.breaker = resilience.NewCircuitBreaker("query-cache-remote", cfg)
	}
	return c
}

// Get looks the query up in the local tier, then the remote one. Remote hits
// are promoted to the local tier.
func (c *QueryCache) Get(ctx context.Context, generation uint64, mode parser.MatchMode, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	key := BuildKey(generation, mode, plan.Terms, limit)
	if result, ok := c.lookup(ctx, key); ok {
		c.recordHit()
		return withQuery(result, plan.RawQuery), true
	}
	c.recordMiss()
	return nil, false
}

func (c *QueryCache) Set(ctx context.Context, generation uint64, mode parser.MatchMode, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	c.store(ctx, BuildKey(generation, mode, plan.Terms, limit), result)
}

// GetOrCompute returns the cached result or runs compute once for all
// concurrent callers asking for the same key. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	mode parser.MatchMode,
	plan *parser.QueryPlan,
	limit int,
	compute func() *executor.SearchResult,
) (*executor.SearchResult, bool) {
	key := BuildKey(generation, mode, plan.Terms, limit)
	if result, ok := c.lookup(ctx, key); ok {
		c.recordHit()
		return withQuery(result, plan.RawQuery), true
	}
	c.recordMiss()
	val, _, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.lookup(ctx, key); ok {
			return result, nil
		}
		result := compute()
		c.store(ctx, key, result)
		return result, nil
	})
	return withQuery(val.(*executor.SearchResult), plan.RawQuery), false
}

// Invalidate drops every entry from both tiers.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		c.logger.Info("cache invalidated")
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.remote.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "remote_keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		LocalSize: c.local.Len(),
		Remote:    c.remote != nil,
	}
	if c.breaker != nil {
		counts := c.breaker.Counts()
		s.RemoteState = counts.State.String()
		s.RemoteErrors = counts.TotalFailures
		s.RemoteSkipped = counts.Rejected
	}
	return s
}

func (c *QueryCache) lookup(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if result, ok := c.local.Get(key); ok {
		return result, true
	}
	if c.remote == nil {
		return nil, false
	}
	var (
		data  string
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.remote.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.local.Add(key, &result)
	return &result, true
}

func (c *QueryCache) store(ctx context.Context, key string, result *executor.SearchResult) {
	c.local.Add(key, result)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.remote.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// withQuery returns a shallow copy of result carrying the caller's raw
// query; queries differing only in punctuation share one entry.
func withQuery(result *executor.SearchResult, raw string) *executor.SearchResult {
	if result.Query == raw {
		return result
	}
	out := *result
	out.Query = raw
	return &out
}

// BuildKey derives the cache key for a query against one generation.
func BuildKey(generation uint64, mode parser.MatchMode, terms []string, limit int) string {
	raw := mode.String() + "\x00" + strconv.Itoa(limit) + "\x00" + strings.Join(terms, "\x00")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}
