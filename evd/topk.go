package evd

import (
	"container/heap"
)

type rankedScore struct {
	score float64
	index uint64
}

// minScoreHeap is a min-heap on score. Among equal scores the higher index
// is considered smaller, so it is evicted first and ties resolve to the
// lower index.
type minScoreHeap []rankedScore

func (h minScoreHeap) Len() int { return len(h) }

func (h minScoreHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].index > h[j].index
}

func (h minScoreHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minScoreHeap) Push(x any) { *h = append(*h, x.(rankedScore)) }

func (h *minScoreHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK returns the indices of the k largest scores in descending score
// order. Ties are broken by the lower index first. If k exceeds the number
// of scores, all indices are returned.
func TopK(scores []float64, k int) []uint64 {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	if k > len(scores) {
		k = len(scores)
	}
	h := make(minScoreHeap, 0, k)
	heap.Init(&h)
	for i, score := range scores {
		entry := rankedScore{score: score, index: uint64(i)}
		if h.Len() < k {
			heap.Push(&h, entry)
		} else if h[0].score < score {
			heap.Pop(&h)
			heap.Push(&h, entry)
		}
	}
	res := make([]uint64, k)
	for i := k - 1; i >= 0; i-- {
		res[i] = heap.Pop(&h).(rankedScore).index
	}
	return res
}
