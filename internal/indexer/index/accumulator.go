package index

import "sync"

// Accumulator collects the next generation while workers run. All writes go
// through one mutex guarding the whole table; workers count terms locally
// and merge once per document, so contention is one lock acquisition per
// document rather than per token.
type Accumulator struct {
	mu     sync.Mutex
	table  map[string]Postings
	tokens int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		table: make(map[string]Postings),
	}
}

// Merge adds the local term counts of one document. Merging the same
// document twice adds the counts together.
func (a *Accumulator) Merge(doc DocID, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for term, count := range counts {
		docs, exists := a.table[term]
		if !exists {
			docs = make(Postings)
			a.table[term] = docs
		}
		docs[doc] += count
		a.tokens += count
	}
}

// Tokens returns the number of term occurrences merged so far.
func (a *Accumulator) Tokens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens
}

// Terms returns the number of distinct terms merged so far.
func (a *Accumulator) Terms() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.table)
}
