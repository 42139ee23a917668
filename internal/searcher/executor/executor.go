package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/tracing"
)

type SearchResult struct {
	Query      string                 `json:"query"`
	Terms      []string               `json:"terms"`
	TotalHits  int                    `json:"total_hits"`
	Generation uint64                 `json:"generation"`
	Results    []ranker.RelativeIndex `json:"results"`
	TermStats  map[string]int         `json:"term_stats"`
}

// Found reports whether the query matched at least one document.
func (r *SearchResult) Found() bool {
	return len(r.Results) > 0
}

type Option func(*Executor)

// WithMetrics records query counters and latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

type Executor struct {
	idx     *index.InvertedIndex
	mode    parser.MatchMode
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(idx *index.InvertedIndex, mode parser.MatchMode, opts ...Option) *Executor {
	e := &Executor{
		idx:    idx,
		mode:   mode,
		logger: slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Mode() parser.MatchMode {
	return e.mode
}

// Search runs every query in order against one index generation and returns
// one result per query.
func (e *Executor) Search(ctx context.Context, queries []string, limit int) []SearchResult {
	view := e.idx.Current()
	results := make([]SearchResult, len(queries))
	for i, query := range queries {
		results[i] = *e.execute(ctx, view, parser.Parse(query), limit)
	}
	return results
}

// Execute runs a single parsed query. A plan without terms, or one whose
// terms select no candidate, yields an empty Results slice.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) *SearchResult {
	return e.execute(ctx, e.idx.Current(), plan, limit)
}

// Current pins the generation queries should run against.
func (e *Executor) Current() index.View {
	return e.idx.Current()
}

// ExecuteOn runs plan against a pinned generation, so that callers keying
// results by generation get results from exactly that generation.
func (e *Executor) ExecuteOn(ctx context.Context, view index.View, plan *parser.QueryPlan, limit int) *SearchResult {
	return e.execute(ctx, view, plan, limit)
}

func (e *Executor) execute(ctx context.Context, view index.View, plan *parser.QueryPlan, limit int) *SearchResult {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "search.execute")
	defer span.End()

	result := &SearchResult{
		Query:      plan.RawQuery,
		Terms:      plan.Terms,
		Generation: view.Generation(),
		Results:    []ranker.RelativeIndex{},
		TermStats:  make(map[string]int, len(plan.Terms)),
	}
	if plan.Empty() {
		e.record(start, "empty_query", 0)
		return result
	}

	_, lookup := tracing.StartChildSpan(ctx, "search.lookup")
	postingsPerTerm := make(map[string]index.Postings, len(plan.Terms))
	for _, term := range plan.Terms {
		postings := view.Postings(term)
		result.TermStats[term] = len(postings)
		if len(postings) > 0 {
			postingsPerTerm[term] = postings
		}
	}
	lookup.End()

	var candidates map[index.DocID]struct{}
	switch e.mode {
	case parser.MatchAll:
		if len(postingsPerTerm) < len(plan.Terms) {
			candidates = map[index.DocID]struct{}{}
		} else {
			candidates = intersectPostings(postingsPerTerm)
		}
	default:
		candidates = unionPostings(postingsPerTerm)
	}
	result.TotalHits = len(candidates)

	_, rank := tracing.StartChildSpan(ctx, "search.rank")
	result.Results = ranker.Rank(postingsPerTerm, candidates, limit)
	rank.SetAttr("candidates", len(candidates))
	rank.End()

	resultType := "hit"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	e.record(start, resultType, len(result.Results))

	span.SetAttr("terms", len(plan.Terms))
	span.SetAttr("results", len(result.Results))
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"mode", e.mode.String(),
		"generation", result.Generation,
		"candidates", len(candidates),
		"results", len(result.Results),
	)
	return result
}

func (e *Executor) record(start time.Time, resultType string, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(results))
}

func intersectPostings(postingsPerTerm map[string]index.Postings) map[index.DocID]struct{} {
	if len(postingsPerTerm) == 0 {
		return make(map[index.DocID]struct{})
	}
	var shortestTerm string
	shortestLen := int(^uint(0) >> 1)
	for term, postings := range postingsPerTerm {
		if len(postings) < shortestLen {
			shortestLen = len(postings)
			shortestTerm = term
		}
	}
	candidates := make(map[index.DocID]struct{}, shortestLen)
	for doc := range postingsPerTerm[shortestTerm] {
		candidates[doc] = struct{}{}
	}
	for term, postings := range postingsPerTerm {
		if term == shortestTerm {
			continue
		}
		for doc := range candidates {
			if _, exists := postings[doc]; !exists {
				delete(candidates, doc)
			}
		}
	}
	return candidates
}

func unionPostings(postingsPerTerm map[string]index.Postings) map[index.DocID]struct{} {
	result := make(map[index.DocID]struct{})
	for _, postings := range postingsPerTerm {
		for doc := range postings {
			result[doc] = struct{}{}
		}
	}
	return result
}
