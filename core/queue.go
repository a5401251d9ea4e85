package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// FIFOTaskQueue: bounded FIFO backing a WorkerPool's pending work
// =============================================================================

// FIFOTaskQueue is a mutex-guarded slice queue. Capacity bounds Offer; Push
// ignores it and is used for direct hand-off to idle workers.
type FIFOTaskQueue struct {
	mu       sync.Mutex
	tasks    []Task
	capacity int
}

// NewFIFOTaskQueue creates a queue that accepts up to capacity tasks via Offer.
func NewFIFOTaskQueue(capacity int) *FIFOTaskQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &FIFOTaskQueue{
		tasks:    make([]Task, 0, min(capacity, defaultQueueCap)),
		capacity: capacity,
	}
}

// Offer appends t if the queue is below capacity.
func (q *FIFOTaskQueue) Offer(t Task) bool {
	return q.OfferExcluding(t, 0)
}

// OfferExcluding is Offer with the first `excluded` queued tasks left out of
// the capacity check. WorkerPool excludes tasks already claimed by idle workers.
func (q *FIFOTaskQueue) OfferExcluding(t Task, excluded int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks)-excluded >= q.capacity {
		return false
	}
	q.tasks = append(q.tasks, t)
	return true
}

// Push appends t regardless of capacity.
func (q *FIFOTaskQueue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *FIFOTaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *FIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Cap returns the Offer capacity.
func (q *FIFOTaskQueue) Cap() int { return q.capacity }

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks and returns how many were dropped.
func (q *FIFOTaskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tasks)
	q.tasks = make([]Task, 0, min(q.capacity, defaultQueueCap))
	return n
}
