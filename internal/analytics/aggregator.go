package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/kafka"
)

const (
	latencyWindow = 10000
	topQueries    = 10
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesBySource  map[Source]int64 `json:"searches_by_source"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyUs      float64          `json:"avg_latency_us"`
	P50LatencyUs      int64            `json:"p50_latency_us"`
	P95LatencyUs      int64            `json:"p95_latency_us"`
	P99LatencyUs      int64            `json:"p99_latency_us"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Rebuilds          int64            `json:"rebuilds"`
	LastRebuild       *RebuildEvent    `json:"last_rebuild,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Consumer feeds the aggregator. *kafka.Consumer implements it.
type Consumer interface {
	Start(ctx context.Context) error
}

// Aggregator folds search and rebuild events into running statistics.
// Latency percentiles cover the most recent searches only.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	bySource          map[Source]int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	rebuilds          int64
	lastRebuild       *RebuildEvent
	startTime         time.Time

	consumer Consumer
	logger   *slog.Logger
}

// NewAggregator returns an aggregator reading from consumer. A nil consumer
// means events arrive through Record only.
func NewAggregator(consumer Consumer) *Aggregator {
	return &Aggregator{
		bySource:          make(map[Source]int64),
		latencies:         make([]int64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the consumer after construction; the consumer's
// handler usually needs the aggregator first.
func (a *Aggregator) SetConsumer(consumer Consumer) {
	a.consumer = consumer
}

// Start consumes until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return nil
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent adapts the aggregator to a Kafka message handler. Undecodable
// messages are logged and skipped so they are still committed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if err := agg.Record(value); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
		}
		return nil
	}
}

// Record decodes one JSON event and folds it in.
func (a *Aggregator) Record(value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		return err
	}
	switch env.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.recordSearchEvent(event)
	case EventRebuild:
		event, err := kafka.DecodeJSON[RebuildEvent](value)
		if err != nil {
			return err
		}
		a.recordRebuildEvent(event)
	default:
		return fmt.Errorf("unknown analytics event type %q", env.Type)
	}
	return nil
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	a.bySource[event.Source]++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyUs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) recordRebuildEvent(event RebuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rebuilds++
	if a.lastRebuild == nil || event.Generation >= a.lastRebuild.Generation {
		e := event
		a.lastRebuild = &e
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches,
		SearchesBySource: make(map[Source]int64, len(a.bySource)),
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		ZeroResultCount:  a.zeroResults,
		Rebuilds:         a.rebuilds,
	}
	for source, n := range a.bySource {
		stats.SearchesBySource[source] = n
	}
	if a.lastRebuild != nil {
		last := *a.lastRebuild
		stats.LastRebuild = &last
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueries)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueries)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// LocalPublisher delivers events straight to an aggregator in process, for
// deployments without Kafka.
type LocalPublisher struct {
	Aggregator *Aggregator
}

func (p LocalPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event value: %w", err)
		}
		if err := p.Aggregator.Record(value); err != nil {
			return err
		}
	}
	return nil
}
