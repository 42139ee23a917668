package ranker

import "container/heap"

// topK keeps the best k results seen so far in a min-heap whose root is the
// worst kept result.
type topK struct {
	limit int
	h     resultHeap
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, h: make(resultHeap, 0, limit)}
}

func (t *topK) offer(r RelativeIndex) {
	if t.h.Len() < t.limit {
		heap.Push(&t.h, r)
		return
	}
	if worse(t.h[0], r) {
		t.h[0] = r
		heap.Fix(&t.h, 0)
	}
}

// sorted drains the heap best first.
func (t *topK) sorted() []RelativeIndex {
	result := make([]RelativeIndex, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(RelativeIndex)
	}
	return result
}

// worse reports whether a ranks below b: lower rank, or equal rank and a
// higher DocID.
func worse(a, b RelativeIndex) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.DocID > b.DocID
}

type resultHeap []RelativeIndex

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(RelativeIndex))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
