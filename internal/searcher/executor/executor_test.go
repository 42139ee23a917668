package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/tracing"
)

var (
	drinks = []string{
		"milk milk milk milk water water water",
		"milk water water",
		"milk milk milk milk milk water water water water water",
		"americano cappuccino",
	}
	fruit = []string{
		"apple banana apple",
		"banana cherry",
		"cherry cherry cherry",
	}
)

func build(t testing.TB, texts []string) *index.InvertedIndex {
	t.Helper()
	idx := index.New()
	indexer.NewBuilder(idx, config.IndexerConfig{}, nil).
		Rebuild(context.Background(), corpus.FromStrings(texts))
	return idx
}

func docIDs(results []ranker.RelativeIndex) []index.DocID {
	ids := make([]index.DocID, len(results))
	for i, r := range results {
		ids[i] = r.DocID
	}
	return ids
}

func ranks(results []ranker.RelativeIndex) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Rank
	}
	return out
}

func TestSearch_MilkWater(t *testing.T) {
	e := New(build(t, drinks), parser.MatchAny)
	res := e.Search(context.Background(), []string{"milk water"}, 5)
	require.Len(t, res, 1)

	assert.Equal(t, []index.DocID{2, 0, 1}, docIDs(res[0].Results))
	assert.InDeltaSlice(t, []float64{1.0, 0.7, 0.3}, ranks(res[0].Results), 1e-9)
	assert.Equal(t, 3, res[0].TotalHits)
	assert.Equal(t, uint64(1), res[0].Generation)
	assert.True(t, res[0].Found())
}

func TestSearch_BananaCherry(t *testing.T) {
	e := New(build(t, fruit), parser.MatchAny)
	res := e.Search(context.Background(), []string{"banana cherry"}, 5)

	assert.Equal(t, []index.DocID{2, 1, 0}, docIDs(res[0].Results))
	assert.InDeltaSlice(t, []float64{1.0, 0.667, 0.333}, ranks(res[0].Results), 1e-3)
}

func TestSearch_UnknownWord(t *testing.T) {
	e := New(build(t, drinks), parser.MatchAny)
	res := e.Search(context.Background(), []string{"nonexistentword"}, 5)

	require.NotNil(t, res[0].Results)
	assert.Empty(t, res[0].Results)
	assert.False(t, res[0].Found())
	assert.Equal(t, map[string]int{"nonexistentword": 0}, res[0].TermStats)
}

func TestSearch_BatchKeepsOrder(t *testing.T) {
	e := New(build(t, fruit), parser.MatchAny)
	queries := []string{"cherry", "", "apple", "...", "grape"}
	res := e.Search(context.Background(), queries, 5)

	require.Len(t, res, len(queries))
	for i, q := range queries {
		assert.Equal(t, q, res[i].Query)
	}
	assert.Equal(t, []index.DocID{2, 1}, docIDs(res[0].Results))
	assert.Empty(t, res[1].Results)
	assert.Equal(t, []index.DocID{0}, docIDs(res[2].Results))
	assert.Empty(t, res[3].Results)
	assert.Empty(t, res[4].Results)
}

func TestExecute_PunctuationAndDuplicates(t *testing.T) {
	e := New(build(t, fruit), parser.MatchAny)
	plain := e.Execute(context.Background(), parser.Parse("banana cherry"), 5)
	noisy := e.Execute(context.Background(), parser.Parse("banana, cherry! banana"), 5)
	assert.Equal(t, plain.Results, noisy.Results)
	assert.Equal(t, []string{"banana", "cherry"}, noisy.Terms)
}

func TestExecute_MatchAll(t *testing.T) {
	e := New(build(t, fruit), parser.MatchAll)

	res := e.Execute(context.Background(), parser.Parse("banana cherry"), 5)
	assert.Equal(t, []ranker.RelativeIndex{{DocID: 1, Rank: 1.0}}, res.Results)

	res = e.Execute(context.Background(), parser.Parse("apple grape"), 5)
	assert.Empty(t, res.Results, "an unknown term empties the intersection")
	assert.Equal(t, 0, res.TotalHits)
}

func TestExecute_Limit(t *testing.T) {
	e := New(build(t, drinks), parser.MatchAny)
	for _, limit := range []int{-1, 0, 1, 2, 3, 10} {
		res := e.Execute(context.Background(), parser.Parse("milk water"), limit)
		want := limit
		if want < 0 {
			want = 0
		}
		if want > 3 {
			want = 3
		}
		assert.Len(t, res.Results, want, "limit %d", limit)
		assert.Equal(t, 3, res.TotalHits)
	}
}

func TestExecute_DocumentTermsKeepPunctuation(t *testing.T) {
	e := New(build(t, []string{"milk. water", "milk"}), parser.MatchAny)

	res := e.Execute(context.Background(), parser.Parse("milk."), 5)
	assert.Equal(t, []string{"milk"}, res.Terms)
	assert.Equal(t, []index.DocID{1}, docIDs(res.Results), "the indexed term \"milk.\" is not reachable")

	res = e.Execute(context.Background(), parser.Parse("water+"), 5)
	assert.Equal(t, []index.DocID{0}, docIDs(res.Results))
}

func TestExecute_CaseSensitive(t *testing.T) {
	e := New(build(t, []string{"Milk milk"}), parser.MatchAny)
	res := e.Execute(context.Background(), parser.Parse("MILK"), 5)
	assert.Empty(t, res.Results)
}

func TestExecute_RankProperties(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = strings.Repeat(fmt.Sprintf("t%d ", i%5), i%9+1) + strings.Repeat("common ", i%4)
	}
	e := New(build(t, texts), parser.MatchAny)

	for _, q := range []string{"t0", "t1 t2", "common", "common t3 t4"} {
		res := e.Execute(context.Background(), parser.Parse(q), 100)
		require.NotEmpty(t, res.Results, q)
		assert.InDelta(t, 1.0, res.Results[0].Rank, 1e-9, q)
		assert.True(t, sort.SliceIsSorted(res.Results, func(i, j int) bool {
			a, b := res.Results[i], res.Results[j]
			if a.Rank != b.Rank {
				return a.Rank > b.Rank
			}
			return a.DocID < b.DocID
		}), q)
		for _, r := range res.Results {
			assert.GreaterOrEqual(t, r.Rank, 0.0)
			assert.LessOrEqual(t, r.Rank, 1.0)
		}
	}
}

func TestSearch_ConcurrentWithRebuild(t *testing.T) {
	idx := index.New()
	b := indexer.NewBuilder(idx, config.IndexerConfig{}, nil)
	b.Rebuild(context.Background(), corpus.FromStrings(drinks))
	e := New(idx, parser.MatchAny)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			b.Rebuild(context.Background(), corpus.FromStrings(drinks))
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		res := e.Search(context.Background(), []string{"milk water"}, 5)
		assert.Equal(t, []index.DocID{2, 0, 1}, docIDs(res[0].Results))
	}
}

func TestExecute_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := New(build(t, fruit), parser.MatchAny, WithMetrics(m))

	ctx, root := tracing.StartSpan(context.Background(), "request", "trace-1")
	e.Search(ctx, []string{"banana", "grape", "!!"}, 5)
	root.End()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("empty_query")))

	require.Len(t, root.Children, 3)
	assert.Equal(t, "search.execute", root.Children[0].Name)
	assert.Equal(t, "trace-1", root.Children[0].TraceID)
	assert.Len(t, root.Children[0].Children, 2)
}

func BenchmarkSearch(b *testing.B) {
	texts := make([]string, 500)
	for i := range texts {
		texts[i] = strings.Repeat(fmt.Sprintf("w%d x%d common ", i%50, i%11), 40)
	}
	e := New(build(b, texts), parser.MatchAny)
	queries := []string{"w1 common", "x3 w7", "common", "missing"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Search(context.Background(), queries, 5)
	}
}
