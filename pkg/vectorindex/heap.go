package vectorindex

import "container/heap"

// distItem is a candidate or result node keyed by distance to the current
// query, used by both heaps in search_layer.
type distItem struct {
	id   string
	dist float32
}

// minHeapItems pops the smallest distance first — used for the
// candidates frontier still being explored.
type minHeapItems []distItem

func (h minHeapItems) Len() int            { return len(h) }
func (h minHeapItems) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeapItems) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeapItems) Push(x any)         { *h = append(*h, x.(distItem)) }
func (h *minHeapItems) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}

// maxHeapItems pops the largest distance first — used for the best-so-far
// result set, so the worst result is always at the top and can be evicted
// cheaply when a better candidate shows up.
type maxHeapItems []distItem

func (h maxHeapItems) Len() int            { return len(h) }
func (h maxHeapItems) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeapItems) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeapItems) Push(x any)         { *h = append(*h, x.(distItem)) }
func (h *maxHeapItems) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}

var (
	_ heap.Interface = (*minHeapItems)(nil)
	_ heap.Interface = (*maxHeapItems)(nil)
)
