package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
)

type EventType string

const (
	EventSearch  EventType = "search"
	EventRebuild EventType = "rebuild"
)

// Source tells which surface answered a search.
type Source string

const (
	SourceHTTP  Source = "http"
	SourceBatch Source = "batch"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Source     Source    `json:"source"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyUs  int64     `json:"latency_us"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

type RebuildEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Unreadable int       `json:"unreadable"`
	Terms      int       `json:"terms"`
	Tokens     int       `json:"tokens"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRebuildEvent describes an installed index generation.
func NewRebuildEvent(stats indexer.BuildStats) RebuildEvent {
	return RebuildEvent{
		Type:       EventRebuild,
		Generation: stats.Generation,
		Documents:  stats.Documents,
		Unreadable: stats.Unreadable,
		Terms:      stats.Terms,
		Tokens:     stats.Tokens,
		DurationMs: stats.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

type envelope struct {
	Type EventType `json:"type"`
}
