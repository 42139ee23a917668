package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/health"
)

var drinks = []string{
	"milk milk milk milk water water water",
	"milk water water",
	"milk milk milk milk milk water water water water water",
	"americano cappuccino",
}

type fixture struct {
	handler *Handler
	builder *indexer.Builder
	mux     *http.ServeMux
	agg     *analytics.Aggregator
}

func newFixture(t *testing.T, build bool, withCache bool) *fixture {
	t.Helper()
	idx := index.New()
	builder := indexer.NewBuilder(idx, config.IndexerConfig{}, nil)
	if build {
		builder.Rebuild(context.Background(), corpus.FromStrings(drinks))
	}
	agg := analytics.NewAggregator(nil)
	collector := analytics.NewCollector(analytics.LocalPublisher{Aggregator: agg}, 64)
	collector.Start(context.Background())
	t.Cleanup(collector.Close)

	opts := Options{
		Documents:    func() []corpus.Document { return corpus.FromStrings(drinks) },
		Collector:    collector,
		Analytics:    analytics.NewHandler(agg, nil),
		DefaultLimit: 5,
		MaxResults:   10,
	}
	if withCache {
		opts.Cache = cache.New(16)
	}
	h := New(builder, executor.New(idx, parser.MatchAny), opts)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{handler: h, builder: builder, mux: mux, agg: agg}
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestSearch_RanksDocuments(t *testing.T) {
	f := newFixture(t, true, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=milk+water", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result executor.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Results, 3)
	assert.Equal(t, index.DocID(2), result.Results[0].DocID)
	assert.Equal(t, 1.0, result.Results[0].Rank)
	assert.Equal(t, index.DocID(0), result.Results[1].DocID)
	assert.InDelta(t, 0.7, result.Results[1].Rank, 1e-9)
	assert.Equal(t, index.DocID(1), result.Results[2].DocID)
	assert.Equal(t, uint64(1), result.Generation)
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t, true, false)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search?q=milk&limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search?q=milk&limit=-1", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodDelete, "/api/v1/search", nil).Code)
}

func TestSearch_Limits(t *testing.T) {
	f := newFixture(t, true, false)
	var result executor.SearchResult

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=milk&limit=0", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Empty(t, result.Results)
	assert.NotNil(t, result.Results)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=milk&limit=1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Results, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=milk&limit=500", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Results, 3)
}

func TestSearch_NotReadyBeforeFirstBuild(t *testing.T) {
	f := newFixture(t, false, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=milk", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "index not built")
}

func TestBatchSearch(t *testing.T) {
	f := newFixture(t, true, true)
	body := strings.NewReader(`{"requests": ["milk water", "espresso", "cappuccino"], "limit": 2}`)
	rec := f.do(t, http.MethodPost, "/api/v1/search", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{
		"generation": 1,
		"answers": {
			"request1": {"result": "true", "relevance": [{"docid": 2, "rank": 1}, {"docid": 0, "rank": 0.7}]},
			"request2": {"result": "false"},
			"request3": {"result": "true", "relevance": [{"docid": 3, "rank": 1}]}
		}
	}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/search", strings.NewReader(`{`)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/search", strings.NewReader(`{"requests":["a"],"limit":-3}`)).Code)
}

func TestSearch_CacheAndAnalytics(t *testing.T) {
	f := newFixture(t, true, true)
	f.do(t, http.MethodGet, "/api/v1/search?q=milk", nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=milk!", nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=tea", nil)

	rec := f.do(t, http.MethodGet, "/api/v1/cache/stats", nil)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(2), stats["misses"])

	f.handler.opts.Collector.Close()
	agg := f.agg.Stats()
	assert.Equal(t, int64(3), agg.TotalSearches)
	assert.Equal(t, int64(1), agg.CacheHits)
	assert.Equal(t, int64(1), agg.ZeroResultCount)

	rec = f.do(t, http.MethodGet, "/api/v1/analytics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_searches":3`)

	rec = f.do(t, http.MethodPost, "/api/v1/cache/invalidate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheEndpoints_Disabled(t *testing.T) {
	f := newFixture(t, true, false)
	rec := f.do(t, http.MethodGet, "/api/v1/cache/stats", nil)
	assert.Contains(t, rec.Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/cache/invalidate", nil).Code)
}

func TestRebuild(t *testing.T) {
	f := newFixture(t, false, false)
	rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats indexer.BuildStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 22, stats.Tokens)

	rec = f.do(t, http.MethodGet, "/api/v1/index/stats", nil)
	assert.JSONEq(t, `{"generation":1,"documents":4,"terms":4,"building":false,"match_mode":"any"}`, rec.Body.String())
}

func TestRebuild_Conflict(t *testing.T) {
	f := newFixture(t, true, false)
	release := make(chan struct{})
	started := make(chan struct{})
	go f.builder.Rebuild(context.Background(), []corpus.Document{gated{started: started, release: release}})
	<-started
	defer close(release)

	rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "rebuild in progress")
}

type gated struct {
	started chan struct{}
	release chan struct{}
}

func (g gated) Name() string { return "gated" }

func (g gated) Open() (io.ReadCloser, error) {
	close(g.started)
	<-g.release
	return io.NopCloser(strings.NewReader("x")), nil
}

func TestIndexCheck(t *testing.T) {
	idx := index.New()
	check := IndexCheck(idx)
	assert.Equal(t, health.StatusDown, check(context.Background()).Status)

	indexer.NewBuilder(idx, config.IndexerConfig{}, nil).Rebuild(context.Background(), corpus.FromStrings(drinks))
	got := check(context.Background())
	assert.Equal(t, health.StatusUp, got.Status)
	assert.Equal(t, "generation 1, 4 documents", got.Message)
}
