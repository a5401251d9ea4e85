package core

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Deadline is an armed watchdog entry.
type Deadline struct {
	At    time.Time
	fire  func()
	index int // for heap interface; -1 once removed
}

// deadlineHeap implements heap.Interface
type deadlineHeap []*Deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	n := len(*h)
	item := x.(*Deadline)
	item.index = n
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *deadlineHeap) Peek() *Deadline {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// Watchdog fires callbacks when deadlines pass. A single goroutine tracks the
// earliest deadline; each expired callback runs on its own goroutine.
type Watchdog struct {
	pq     deadlineHeap
	mu     sync.Mutex
	clock  clock.WithTicker
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchdog starts a watchdog driven by clk (clock.RealClock when nil).
func NewWatchdog(clk clock.WithTicker) *Watchdog {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watchdog{
		pq:     make(deadlineHeap, 0),
		clock:  clk,
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	heap.Init(&w.pq)
	go w.loop()
	return w
}

// Arm schedules fire to run once timeout has elapsed, unless disarmed first.
func (w *Watchdog) Arm(timeout time.Duration, fire func()) *Deadline {
	w.mu.Lock()
	defer w.mu.Unlock()

	item := &Deadline{At: w.clock.Now().Add(timeout), fire: fire}
	heap.Push(&w.pq, item)

	if item.index == 0 {
		select {
		case w.wakeup <- struct{}{}:
		default:
		}
	}
	return item
}

// Disarm removes d. It returns false if d already fired or was removed.
func (w *Watchdog) Disarm(d *Deadline) bool {
	if d == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if d.index < 0 || d.index >= len(w.pq) || w.pq[d.index] != d {
		return false
	}
	heap.Remove(&w.pq, d.index)
	return true
}

func (w *Watchdog) loop() {
	defer close(w.done)

	timer := w.clock.NewTimer(time.Hour)
	timer.Stop()

	for {
		next, ok := w.nextWait()
		if !ok {
			// Nothing armed, wait for Arm
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-w.ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
			w.fireExpired()
		case <-w.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
		}
	}
}

// nextWait returns how long until the earliest deadline; false when none are armed.
func (w *Watchdog) nextWait() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	item := w.pq.Peek()
	if item == nil {
		return 0, false
	}
	wait := item.At.Sub(w.clock.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (w *Watchdog) fireExpired() {
	w.mu.Lock()

	now := w.clock.Now()
	var expired []*Deadline
	for w.pq.Len() > 0 {
		item := w.pq.Peek()
		if item.At.After(now) {
			break
		}
		heap.Pop(&w.pq)
		expired = append(expired, item)
	}

	w.mu.Unlock()

	// Fire outside the lock so callbacks may Arm or Disarm.
	for _, item := range expired {
		go item.fire()
	}
}

// Pending returns the number of armed deadlines.
func (w *Watchdog) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pq)
}

// Stop terminates the watchdog loop and drops every armed deadline.
func (w *Watchdog) Stop() {
	w.cancel()
	<-w.done

	w.mu.Lock()
	for _, item := range w.pq {
		item.index = -1
	}
	w.pq = make(deadlineHeap, 0)
	w.mu.Unlock()
}
