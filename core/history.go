package core

import (
	"sync"
)

const defaultRequestHistoryCapacity = 100

// requestHistory is a fixed-size ring of the most recent finished requests.
type requestHistory struct {
	mu    sync.Mutex
	items []RequestRecord
	head  int
	count int
}

func newRequestHistory(capacity int) *requestHistory {
	if capacity < 1 {
		capacity = defaultRequestHistoryCapacity
	}
	return &requestHistory{items: make([]RequestRecord, capacity)}
}

func (h *requestHistory) Add(record RequestRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *requestHistory) Recent(limit int) []RequestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]RequestRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *requestHistory) Last() (RequestRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return RequestRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
