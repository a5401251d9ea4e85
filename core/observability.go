package core

import (
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// QueueStatistic is a read-only snapshot of a WorkerPool's live counters.
type QueueStatistic struct {
	Name            string    `json:"name"`
	PoolSize        int       `json:"poolSize"`
	CorePoolSize    int       `json:"corePoolSize"`
	MaxPoolSize     int       `json:"maxPoolSize"`
	ActiveCount     int       `json:"activeCount"`
	IdleCount       int       `json:"idleCount"`
	LargestPoolSize int       `json:"largestPoolSize"`
	QueueDepth      int       `json:"queueDepth"`
	QueueCapacity   int       `json:"queueCapacity"`
	CompletedCount  int64     `json:"completedCount"`
	RejectedCount   int64     `json:"rejectedCount"`
	Running         bool      `json:"running"`
	TakenAt         time.Time `json:"takenAt"`
}

// Phase names a timestamp recorded on a RequestStatistic.
type Phase int

const (
	PhaseEnqueued Phase = iota
	PhaseCallStart
	PhaseCallEnd
	PhaseConversionStart
	PhaseConversionEnd
	PhaseCallbackStart
	PhaseCallbackEnd
	PhaseCompleted
	numPhases
)

var phaseNames = [numPhases]string{
	"enqueued", "call_start", "call_end", "conversion_start", "conversion_end",
	"callback_start", "callback_end", "completed",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// RequestStatistic records phase timestamps of one request. Marks are stored as
// monotonic offsets from the statistic's origin; durations are derived on read.
// Marks may come from the caller, a worker and the watchdog concurrently.
type RequestStatistic struct {
	clock  clock.PassiveClock
	origin time.Time
	// offset+1 in nanoseconds; zero means the phase was never reached
	marks [numPhases]atomic.Int64
	queue atomic.Pointer[QueueStatistic]
}

// NewRequestStatistic starts a statistic whose origin is clk.Now().
func NewRequestStatistic(clk clock.PassiveClock) *RequestStatistic {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RequestStatistic{clock: clk, origin: clk.Now()}
}

// Mark records the current time for phase p. Later marks for the same phase win.
func (s *RequestStatistic) Mark(p Phase) {
	s.marks[p].Store(int64(s.clock.Since(s.origin)) + 1)
}

// At returns the time phase p was recorded.
func (s *RequestStatistic) At(p Phase) (time.Time, bool) {
	v := s.marks[p].Load()
	if v == 0 {
		return time.Time{}, false
	}
	return s.origin.Add(time.Duration(v - 1)), true
}

func (s *RequestStatistic) between(from, to Phase) time.Duration {
	a, b := s.marks[from].Load(), s.marks[to].Load()
	if a == 0 || b == 0 || b < a {
		return 0
	}
	return time.Duration(b - a)
}

// QueueTime is enqueue → call start.
func (s *RequestStatistic) QueueTime() time.Duration {
	return s.between(PhaseEnqueued, PhaseCallStart)
}

// CallTime is call start → call end.
func (s *RequestStatistic) CallTime() time.Duration {
	return s.between(PhaseCallStart, PhaseCallEnd)
}

// ConversionTime is conversion start → conversion end.
func (s *RequestStatistic) ConversionTime() time.Duration {
	return s.between(PhaseConversionStart, PhaseConversionEnd)
}

// CallbackTime is callback start → callback end.
func (s *RequestStatistic) CallbackTime() time.Duration {
	return s.between(PhaseCallbackStart, PhaseCallbackEnd)
}

// Total is enqueue → completion.
func (s *RequestStatistic) Total() time.Duration {
	return s.between(PhaseEnqueued, PhaseCompleted)
}

// Queue returns the pool snapshot captured when the request finished.
func (s *RequestStatistic) Queue() (QueueStatistic, bool) {
	q := s.queue.Load()
	if q == nil {
		return QueueStatistic{}, false
	}
	return *q, true
}

func (s *RequestStatistic) attachQueue(q QueueStatistic) bool {
	return s.queue.CompareAndSwap(nil, &q)
}

// RequestRecord captures a finished request for the dispatcher history.
type RequestRecord struct {
	RequestID  string
	Route      RouteKey
	Pool       string
	Status     Status
	Err        error
	Timeout    TimeOut
	QueueTime  time.Duration
	CallTime   time.Duration
	Total      time.Duration
	FinishedAt time.Time
}

// DispatcherStats is a snapshot of dispatcher-level counters.
type DispatcherStats struct {
	Dispatched     int64            `json:"dispatched"`
	InFlight       int64            `json:"inFlight"`
	Completed      map[string]int64 `json:"completed"`
	ArmedWatchdogs int              `json:"armedWatchdogs"`
}
