package indexer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/tracing"
)

type BuildStats struct {
	Generation uint64        `json:"generation"`
	Documents  int           `json:"documents"`
	Unreadable int           `json:"unreadable"`
	Tokens     int           `json:"tokens"`
	Terms      int           `json:"terms"`
	Duration   time.Duration `json:"duration"`
}

// Builder rebuilds an InvertedIndex from a document list. Rebuilds on one
// Builder are serialized; queries keep reading the previous generation until
// the new one is installed.
type Builder struct {
	idx      *index.InvertedIndex
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	buildMu  sync.Mutex
	building atomic.Bool
	hooksMu  sync.RWMutex
	hooks    []func(BuildStats)
}

// NewBuilder returns a Builder for idx. m may be nil.
func NewBuilder(idx *index.InvertedIndex, cfg config.IndexerConfig, m *metrics.Metrics) *Builder {
	return &Builder{
		idx:     idx,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "index-builder"),
	}
}

func (b *Builder) Index() *index.InvertedIndex {
	return b.idx
}

// Building reports whether a rebuild is in flight.
func (b *Builder) Building() bool {
	return b.building.Load()
}

// OnRebuild registers fn to run after every installed generation.
func (b *Builder) OnRebuild(fn func(BuildStats)) {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Rebuild replaces the index with one built from docs. Document ids are
// positions in docs. One worker is started per document (bounded by
// cfg.MaxWorkers when positive); Rebuild blocks until all of them finish.
// A document that cannot be opened or read is indexed as empty and still
// owns its id. If another rebuild is running, Rebuild waits for it.
func (b *Builder) Rebuild(ctx context.Context, docs []corpus.Document) BuildStats {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()
	return b.rebuild(ctx, docs)
}

// TryRebuild is Rebuild without waiting: it fails with ErrRebuildInProgress
// when another rebuild holds the builder.
func (b *Builder) TryRebuild(ctx context.Context, docs []corpus.Document) (BuildStats, error) {
	if !b.buildMu.TryLock() {
		if b.metrics != nil {
			b.metrics.RebuildsTotal.WithLabelValues("rejected").Inc()
		}
		return BuildStats{}, apperrors.ErrRebuildInProgress
	}
	defer b.buildMu.Unlock()
	return b.rebuild(ctx, docs), nil
}

func (b *Builder) rebuild(ctx context.Context, docs []corpus.Document) BuildStats {
	b.building.Store(true)
	defer b.building.Store(false)

	_, span := tracing.StartChildSpan(ctx, "index.rebuild")
	defer span.End()

	start := time.Now()
	acc := index.NewAccumulator()
	var unreadable atomic.Int64

	g := new(errgroup.Group)
	if b.cfg.MaxWorkers > 0 {
		g.SetLimit(b.cfg.MaxWorkers)
	}
	for i, doc := range docs {
		id := index.DocID(i)
		g.Go(func() error {
			if !b.indexDocument(acc, id, doc) {
				unreadable.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := BuildStats{
		Documents:  len(docs),
		Unreadable: int(unreadable.Load()),
		Tokens:     acc.Tokens(),
		Terms:      acc.Terms(),
	}
	stats.Generation = b.idx.Install(acc, len(docs))
	stats.Duration = time.Since(start)

	span.SetAttr("generation", stats.Generation)
	span.SetAttr("documents", stats.Documents)
	span.SetAttr("terms", stats.Terms)

	b.record(stats)
	b.logger.Info("index rebuilt",
		"generation", stats.Generation,
		"documents", stats.Documents,
		"unreadable", stats.Unreadable,
		"tokens", stats.Tokens,
		"terms", stats.Terms,
		"duration", stats.Duration,
	)

	b.hooksMu.RLock()
	hooks := make([]func(BuildStats), len(b.hooks))
	copy(hooks, b.hooks)
	b.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(stats)
	}
	return stats
}

// indexDocument counts the terms of one document locally and merges them
// into acc. It reports false when the document could not be read; nothing
// is merged in that case.
func (b *Builder) indexDocument(acc *index.Accumulator, id index.DocID, doc corpus.Document) bool {
	rc, err := doc.Open()
	if err != nil {
		b.logger.Debug("document unreadable, indexing as empty",
			"doc_id", id,
			"name", doc.Name(),
			"error", err,
		)
		return false
	}
	defer rc.Close()

	counts := make(map[string]int)
	if err := tokenizer.Scan(rc, func(term string) {
		counts[term]++
	}); err != nil {
		b.logger.Debug("document read failed, indexing as empty",
			"doc_id", id,
			"name", doc.Name(),
			"error", err,
		)
		return false
	}
	acc.Merge(id, counts)
	return true
}

func (b *Builder) record(stats BuildStats) {
	if b.metrics == nil {
		return
	}
	b.metrics.RebuildsTotal.WithLabelValues("ok").Inc()
	b.metrics.RebuildDuration.Observe(stats.Duration.Seconds())
	b.metrics.IndexDocuments.Set(float64(stats.Documents))
	b.metrics.IndexTerms.Set(float64(stats.Terms))
	b.metrics.IndexGeneration.Set(float64(stats.Generation))
	b.metrics.UnreadableDocsTotal.Add(float64(stats.Unreadable))
	b.metrics.TokensIndexedTotal.Add(float64(stats.Tokens))
}
