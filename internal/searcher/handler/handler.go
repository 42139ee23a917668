// Package handler serves the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/converter"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/middleware"
)

const (
	maxBodyBytes     = 1 << 20
	maxBatchRequests = 1000
)

// Routes lists every API path, for metrics labelling.
var Routes = []string{
	"/api/v1/search",
	"/api/v1/index/rebuild",
	"/api/v1/index/stats",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
	"/api/v1/analytics",
	"/api/v1/analytics/snapshot",
}

type Options struct {
	// Documents supplies the corpus for POST /api/v1/index/rebuild.
	Documents    func() []corpus.Document
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Analytics    *analytics.Handler
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	builder  *indexer.Builder
	executor *executor.Executor
	opts     Options
	logger   *slog.Logger
}

func New(builder *indexer.Builder, exec *executor.Executor, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		builder:  builder,
		executor: exec,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.BatchSearch)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", h.AnalyticsStats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", h.AnalyticsSnapshot)
}

// Search serves GET /api/v1/search?q=...&limit=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := h.executor.Current()
	if view.Generation() == 0 {
		h.writeError(w, apperrors.ErrNotReady)
		return
	}
	result := h.search(r.Context(), view, query, limit)
	h.writeJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	Requests []string `json:"requests"`
	Limit    *int     `json:"limit,omitempty"`
}

type batchResponse struct {
	Generation uint64            `json:"generation"`
	Answers    converter.Answers `json:"answers"`
}

// BatchSearch serves POST /api/v1/search. Every request in the batch runs
// against the same index generation; answers use the answers-file shape.
func (h *Handler) BatchSearch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	if len(req.Requests) > maxBatchRequests {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"at most %d requests per batch", maxBatchRequests))
		return
	}
	limit := h.opts.DefaultLimit
	if req.Limit != nil {
		var err error
		if limit, err = h.clampLimit(*req.Limit); err != nil {
			h.writeError(w, err)
			return
		}
	}
	view := h.executor.Current()
	if view.Generation() == 0 {
		h.writeError(w, apperrors.ErrNotReady)
		return
	}

	results := make([][]ranker.RelativeIndex, len(req.Requests))
	for i, query := range req.Requests {
		results[i] = h.search(r.Context(), view, query, limit).Results
	}
	h.writeJSON(w, http.StatusOK, batchResponse{
		Generation: view.Generation(),
		Answers:    converter.Format(results),
	})
}

func (h *Handler) search(ctx context.Context, view index.View, query string, limit int) *executor.SearchResult {
	start := time.Now()
	plan := parser.Parse(query)
	mode := h.executor.Mode()

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	switch {
	case plan.Empty() || h.opts.Cache == nil:
		result = h.executor.ExecuteOn(ctx, view, plan, limit)
	default:
		result, cacheHit = h.opts.Cache.GetOrCompute(ctx, view.Generation(), mode, plan, limit, func() *executor.SearchResult {
			return h.executor.ExecuteOn(ctx, view, plan, limit)
		})
	}
	latency := time.Since(start)

	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_us", latency.Microseconds(),
	)
	if h.opts.Collector != nil {
		h.opts.Collector.Track(analytics.SearchEvent{
			Type:       analytics.EventSearch,
			Source:     analytics.SourceHTTP,
			Query:      query,
			Terms:      plan.Terms,
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyUs:  latency.Microseconds(),
			CacheHit:   cacheHit,
			Generation: result.Generation,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}
	return result
}

// Rebuild serves POST /api/v1/index/rebuild. The rebuild outlives a client
// that disconnects; a concurrent rebuild is rejected with 409.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.opts.Documents == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidConfig, http.StatusServiceUnavailable, "no document source configured"))
		return
	}
	stats, err := h.builder.TryRebuild(context.WithoutCancel(r.Context()), h.opts.Documents())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

type indexStats struct {
	Generation uint64 `json:"generation"`
	Documents  int    `json:"documents"`
	Terms      int    `json:"terms"`
	Building   bool   `json:"building"`
	MatchMode  string `json:"match_mode"`
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	view := h.executor.Current()
	h.writeJSON(w, http.StatusOK, indexStats{
		Generation: view.Generation(),
		Documents:  view.DocCount(),
		Terms:      view.Terms(),
		Building:   h.builder.Building(),
		MatchMode:  h.executor.Mode().String(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.opts.Cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":           stats.Hits,
		"misses":         stats.Misses,
		"total":          total,
		"hit_rate":       fmt.Sprintf("%.1f%%", hitRate),
		"local_size":     stats.LocalSize,
		"remote":         stats.Remote,
		"remote_state":   stats.RemoteState,
		"remote_errors":  stats.RemoteErrors,
		"remote_skipped": stats.RemoteSkipped,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidConfig, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.opts.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) AnalyticsStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Analytics == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidConfig, http.StatusServiceUnavailable, "analytics is disabled"))
		return
	}
	h.opts.Analytics.Stats(w, r)
}

func (h *Handler) AnalyticsSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.opts.Analytics == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidConfig, http.StatusServiceUnavailable, "analytics is disabled"))
		return
	}
	h.opts.Analytics.Snapshot(w, r)
}

// IndexCheck reports down until the first generation is installed.
func IndexCheck(idx *index.InvertedIndex) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if idx.Generation() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index generation installed"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", idx.Generation(), idx.DocCount()),
		}
	}
}

// parseLimit accepts an absent value (default) or an integer >= 0, capped
// at MaxResults.
func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a non-negative integer")
	}
	return h.clampLimit(n)
}

func (h *Handler) clampLimit(n int) (int, error) {
	if n < 0 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a non-negative integer")
	}
	if n > h.opts.MaxResults {
		n = h.opts.MaxResults
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
