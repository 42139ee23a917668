// Package index holds the in-memory inverted index: term -> document ->
// occurrence count.
//
// The index is replaced one whole generation at a time. A generation's table
// is never mutated after it is installed, so readers holding a View keep a
// consistent picture even while the next generation is being built.
package index

import (
	"sort"
	"sync"
)

type InvertedIndex struct {
	mu         sync.RWMutex
	table      map[string]Postings
	docCount   int
	generation uint64
}

func New() *InvertedIndex {
	return &InvertedIndex{
		table: make(map[string]Postings),
	}
}

// WordCount returns a copy of the postings for an exact-match term, or an
// empty map when the term never occurred.
func (m *InvertedIndex) WordCount(term string) Postings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.table[term]
	result := make(Postings, len(docs))
	for id, count := range docs {
		result[id] = count
	}
	return result
}

// TotalCount returns the number of occurrences of term across all documents.
func (m *InvertedIndex) TotalCount(term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, count := range m.table[term] {
		total += count
	}
	return total
}

func (m *InvertedIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *InvertedIndex) Terms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table)
}

// Generation is 0 until the first build is installed and increases by one
// with every install.
func (m *InvertedIndex) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Current returns a read-only view of the installed generation.
func (m *InvertedIndex) Current() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{
		table:      m.table,
		docCount:   m.docCount,
		generation: m.generation,
	}
}

// Install replaces the whole index with the contents of acc and returns the
// new generation number. acc must not be used afterwards.
func (m *InvertedIndex) Install(acc *Accumulator, docCount int) uint64 {
	acc.mu.Lock()
	table := acc.table
	acc.table = nil
	acc.mu.Unlock()
	if table == nil {
		table = make(map[string]Postings)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = table
	m.docCount = docCount
	m.generation++
	return m.generation
}

// Snapshot returns every term in lexical order with its postings sorted by
// document.
func (m *InvertedIndex) Snapshot() []TermEntry {
	return m.Current().Snapshot()
}

// View is a consistent, lock-free read of a single generation.
type View struct {
	table      map[string]Postings
	docCount   int
	generation uint64
}

// Postings returns the postings for term. The map is shared with the index
// and must not be modified.
func (v View) Postings(term string) Postings {
	return v.table[term]
}

func (v View) DocCount() int { return v.docCount }

func (v View) Generation() uint64 { return v.generation }

func (v View) Terms() int { return len(v.table) }

func (v View) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(v.table))
	for term, docs := range v.table {
		postings := make(PostingList, 0, len(docs))
		for id, count := range docs {
			postings = append(postings, Posting{DocID: id, Frequency: count})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}
