package utils

import "container/heap"

// Compares the priority of two items. A negative result means a goes first.
type PriorityFunc[T any] func(a, b T) int

// An ordered queue, highest priority first.
type PriorityQueue[T any] struct {
	heap priorityHeap[T]
}

// Creates a priority queue holding the given items.
func NewPriorityQueue[T any](compare PriorityFunc[T], items ...T) *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		heap: priorityHeap[T]{
			items:   append(make([]T, 0, len(items)), items...),
			compare: compare,
		},
	}
	heap.Init(&pq.heap)
	return pq
}

func (pq *PriorityQueue[T]) Push(item T) {
	heap.Push(&pq.heap, item)
}

// Pops the highest priority item. Returns false if the queue is empty.
func (pq *PriorityQueue[T]) Pop() (T, bool) {
	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&pq.heap).(T), true
}

func (pq *PriorityQueue[T]) Len() int {
	return pq.heap.Len()
}

// Removes and returns all items in priority order.
func (pq *PriorityQueue[T]) Drain() []T {
	items := make([]T, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		items = append(items, heap.Pop(&pq.heap).(T))
	}
	return items
}

type priorityHeap[T any] struct {
	items   []T
	compare PriorityFunc[T]
}

func (h priorityHeap[T]) Len() int {
	return len(h.items)
}

func (h priorityHeap[T]) Less(i, j int) bool {
	return h.compare(h.items[i], h.items[j]) < 0
}

func (h priorityHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *priorityHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *priorityHeap[T]) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	var zero T
	h.items[n-1] = zero
	h.items = h.items[:n-1]
	return x
}
