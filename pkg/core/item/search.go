package item

import (
	"container/heap"
	"math"
)

// ScoredItem pairs an Item with its cosine-similarity score against a
// query embedding.
type ScoredItem struct {
	Item  *Item
	Score float64
}

// scoreHeap is a min-heap on Score, used to keep the top-K highest
// scoring items while scanning the catalog once. Mirrors the teacher's
// container/heap.Interface price-level heaps (orderbook/heap.go), with
// Score standing in for price.
type scoreHeap []ScoredItem

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x any)         { *h = append(*h, x.(ScoredItem)) }
func (h *scoreHeap) Peek() ScoredItem   { return (*h)[0] }
func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SearchTopK scans items with a non-empty embedding, scores them by
// cosine similarity against query, and returns up to limit results in
// descending score order, filtered by minSimilarity if positive.
func SearchTopK(items []*Item, query []float32, limit int, minSimilarity float64) []ScoredItem {
	if limit <= 0 {
		limit = 3
	}

	h := &scoreHeap{}
	heap.Init(h)

	for _, it := range items {
		if len(it.Embedding) == 0 || !it.Active {
			continue
		}
		score := cosineSimilarity(it.Embedding, query)
		if minSimilarity > 0 && score < minSimilarity {
			continue
		}
		if h.Len() < limit {
			heap.Push(h, ScoredItem{Item: it, Score: score})
			continue
		}
		if h.Len() > 0 && score > h.Peek().Score {
			heap.Pop(h)
			heap.Push(h, ScoredItem{Item: it, Score: score})
		}
	}

	results := make([]ScoredItem, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(ScoredItem)
	}
	return results
}

func cosineSimilarity(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
