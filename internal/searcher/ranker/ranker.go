package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer/index"
)

// RelativeIndex is one ranked document. Rank is the document's absolute
// rank divided by the highest absolute rank among the query's candidates.
type RelativeIndex struct {
	DocID index.DocID `json:"docid"`
	Rank  float64     `json:"rank"`
}

// Rank scores candidates by raw term frequency and returns at most limit of
// them, ordered by rank descending and then by DocID ascending.
//
// The absolute rank of a document is the sum, over the query's terms, of the
// term's occurrence count in that document. Ranks are normalized by the
// maximum absolute rank; if that maximum is zero every rank is zero.
func Rank(
	postingsPerTerm map[string]index.Postings,
	candidates map[index.DocID]struct{},
	limit int,
) []RelativeIndex {
	if limit <= 0 || len(candidates) == 0 {
		return []RelativeIndex{}
	}

	absolute := make(map[index.DocID]int, len(candidates))
	maxRank := 0
	for doc := range candidates {
		sum := 0
		for _, postings := range postingsPerTerm {
			sum += postings[doc]
		}
		absolute[doc] = sum
		if sum > maxRank {
			maxRank = sum
		}
	}

	top := newTopK(limit)
	for doc, abs := range absolute {
		rank := 0.0
		if maxRank > 0 {
			rank = float64(abs) / float64(maxRank)
		}
		top.offer(RelativeIndex{DocID: doc, Rank: rank})
	}
	return top.sorted()
}
