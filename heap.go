package vdet

import "container/heap"

// scoreHeap is a min-heap of scores; the smallest resident score is at index 0.
type scoreHeap []float64

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }

func (h *scoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *scoreHeap) push(score float64) {
	heap.Push(h, score)
}

// trim pops the minimum until at most limit scores remain and reports how many were popped.
func (h *scoreHeap) trim(limit int) int {
	popped := 0
	for h.Len() > limit {
		heap.Pop(h)
		popped++
	}
	return popped
}

func (h scoreHeap) min() float64 {
	return h[0]
}
