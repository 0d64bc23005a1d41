package session

import "sync"

// Queue is a multi-producer FIFO drained by a single consumer.
//
// Push never blocks. Every push leaves a pending signal on Wake; the consumer
// drains the whole queue per signal, so coalesced signals lose nothing.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{wake: make(chan struct{}, 1)}
}

func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// PushFront puts items back at the head, preserving their order.
func (q *Queue[T]) PushFront(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	q.mu.Unlock()
	q.signal()
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Remove deletes every queued item matching drop and returns how many went.
func (q *Queue[T]) Remove(drop func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if drop(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	return removed
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake fires at least once after any push not yet drained.
func (q *Queue[T]) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
