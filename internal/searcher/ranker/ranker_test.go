package ranker

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
)

func candidatesOf(ids ...index.DocID) map[index.DocID]struct{} {
	set := make(map[index.DocID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestRank_MilkWater(t *testing.T) {
	postings := map[string]index.Postings{
		"milk":  {0: 4, 1: 1, 2: 5},
		"water": {0: 3, 1: 2, 2: 5},
	}
	got := Rank(postings, candidatesOf(0, 1, 2), 5)
	assert.Equal(t, []RelativeIndex{
		{DocID: 2, Rank: 1.0},
		{DocID: 0, Rank: 0.7},
		{DocID: 1, Rank: 0.3},
	}, got)
}

func TestRank_TiesByDocIDAscending(t *testing.T) {
	postings := map[string]index.Postings{
		"banana": {0: 1, 1: 1, 2: 2, 3: 1},
	}
	got := Rank(postings, candidatesOf(3, 1, 0, 2), 10)
	assert.Equal(t, []RelativeIndex{
		{DocID: 2, Rank: 1.0},
		{DocID: 0, Rank: 0.5},
		{DocID: 1, Rank: 0.5},
		{DocID: 3, Rank: 0.5},
	}, got)
}

func TestRank_Truncates(t *testing.T) {
	postings := map[string]index.Postings{
		"a": {0: 1, 1: 2, 2: 3, 3: 4},
	}
	got := Rank(postings, candidatesOf(0, 1, 2, 3), 2)
	assert.Equal(t, []RelativeIndex{
		{DocID: 3, Rank: 1.0},
		{DocID: 2, Rank: 0.75},
	}, got)
}

func TestRank_ZeroMaxGivesZeroRanks(t *testing.T) {
	got := Rank(map[string]index.Postings{}, candidatesOf(1, 0), 5)
	assert.Equal(t, []RelativeIndex{{DocID: 0, Rank: 0}, {DocID: 1, Rank: 0}}, got)
}

func TestRank_EmptyInputs(t *testing.T) {
	postings := map[string]index.Postings{"a": {0: 1}}
	assert.Empty(t, Rank(postings, candidatesOf(), 5))
	assert.NotNil(t, Rank(postings, candidatesOf(), 5))
	assert.Empty(t, Rank(postings, candidatesOf(0), 0))
	assert.Empty(t, Rank(postings, candidatesOf(0), -1))
}

func TestRank_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	postings := map[string]index.Postings{"a": {}, "b": {}}
	candidates := candidatesOf()
	for doc := index.DocID(0); doc < 300; doc++ {
		candidates[doc] = struct{}{}
		if n := rng.Intn(6); n > 0 {
			postings["a"][doc] = n
		}
		if n := rng.Intn(4); n > 0 {
			postings["b"][doc] = n
		}
	}

	all := Rank(postings, candidates, len(candidates))
	require.Len(t, all, 300)
	assert.True(t, sort.SliceIsSorted(all, func(i, j int) bool { return worse(all[j], all[i]) }))
	assert.Equal(t, 1.0, all[0].Rank)

	for _, limit := range []int{1, 5, 17, 299} {
		assert.Equal(t, all[:limit], Rank(postings, candidates, limit), "limit %d", limit)
	}
}
