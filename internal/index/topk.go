package index

import (
	"container/heap"
	"sort"
)

// neighbor is a candidate result. dist holds the scan kernel value until finalized.
type neighbor struct {
	id   ID
	dist float64
}

// closer orders neighbors by ascending distance, ties by ascending id.
func closer(a, b neighbor) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

// maxHeap keeps the worst retained neighbor on top.
type maxHeap []neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(neighbor)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// topK retains the k closest neighbors offered to it.
type topK struct {
	k int
	h maxHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(maxHeap, 0, k)}
}

func (t *topK) offer(n neighbor) {
	if len(t.h) < t.k {
		heap.Push(&t.h, n)
		return
	}
	if closer(n, t.h[0]) {
		t.h[0] = n
		heap.Fix(&t.h, 0)
	}
}

func (t *topK) merge(other *topK) {
	for _, n := range other.h {
		t.offer(n)
	}
}

// sorted returns the retained neighbors best first.
func (t *topK) sorted() []neighbor {
	out := make([]neighbor, len(t.h))
	copy(out, t.h)
	sortNeighbors(out)
	return out
}

func sortNeighbors(ns []neighbor) {
	sort.Slice(ns, func(i, j int) bool { return closer(ns[i], ns[j]) })
}
