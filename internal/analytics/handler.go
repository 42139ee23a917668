package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// SnapshotSource returns the most recent persisted aggregate, or nil when
// none exists. *Store implements it.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (*AggregatedStats, error)
}

// Handler serves the live aggregate and, when snapshots are configured, the
// last one persisted.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotSource
	logger     *slog.Logger
}

// NewHandler serves agg. snapshots may be nil.
func NewHandler(agg *Aggregator, snapshots SnapshotSource) *Handler {
	return &Handler{
		aggregator: agg,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves the live aggregate. ?top=N trims both query rankings to N
// entries.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := topQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		top = n
	}
	stats := h.aggregator.Stats()
	stats.TopQueries = truncate(stats.TopQueries, top)
	stats.ZeroResultQueries = truncate(stats.ZeroResultQueries, top)
	h.write(w, http.StatusOK, stats)
}

// Snapshot serves the latest persisted aggregate.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.write(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics snapshots are disabled"})
		return
	}
	stats, err := h.snapshots.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.Error("loading analytics snapshot", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if stats == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "no analytics snapshot saved yet"})
		return
	}
	h.write(w, http.StatusOK, stats)
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func truncate(counts []QueryCount, n int) []QueryCount {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}
