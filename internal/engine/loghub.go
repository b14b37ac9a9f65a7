package engine

import (
	"sync"
	"time"
)

const subscriberBuffer = 64

// LogLine is one live log line produced during a workflow execution.
type LogLine struct {
	Level     string
	Message   string
	Timestamp time.Time
}

// logStream holds the buffered backlog and live subscribers for one
// execution.
type logStream struct {
	backlog   []LogLine
	subs      map[uint64]chan LogLine
	completed bool
	evict     *time.Timer
}

// LogHub buffers log lines per execution and fans them out to live
// subscribers. Lines are delivered in append order; a subscriber that
// connects mid-execution first receives the full backlog, then live
// appends. Streams are evicted a fixed retention window after completion.
type LogHub struct {
	mu        sync.Mutex
	streams   map[string]*logStream
	retention time.Duration
	nextSub   uint64
	closed    bool
}

// NewLogHub creates a LogHub that evicts completed streams after the given
// retention window.
func NewLogHub(retention time.Duration) *LogHub {
	return &LogHub{
		streams:   make(map[string]*logStream),
		retention: retention,
	}
}

// Append buffers a line for an execution and delivers it to live
// subscribers. Appends to a completed or evicted stream are dropped.
func (h *LogHub) Append(executionID string, line LogLine) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	s, ok := h.streams[executionID]
	if !ok {
		s = &logStream{subs: make(map[uint64]chan LogLine)}
		h.streams[executionID] = s
	}
	if s.completed {
		return
	}

	s.backlog = append(s.backlog, line)
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			// backpressure: drop line for slow subscriber
		}
	}
}

// Subscribe returns a channel that first replays the execution's backlog,
// then receives live appends in order. The cancel function detaches the
// subscriber. Subscribing to a completed stream replays the backlog and
// closes the channel.
func (h *LogHub) Subscribe(executionID string) (<-chan LogLine, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[executionID]
	if !ok && !h.closed {
		s = &logStream{subs: make(map[uint64]chan LogLine)}
		h.streams[executionID] = s
	}
	if s == nil || s.completed {
		ch := make(chan LogLine, backlogLen(s))
		if s != nil {
			for _, line := range s.backlog {
				ch <- line
			}
		}
		close(ch)
		return ch, func() {}
	}

	// Backlog replay and registration happen under the same lock as
	// Append, so the subscriber observes every line exactly once, in order.
	ch := make(chan LogLine, len(s.backlog)+subscriberBuffer)
	for _, line := range s.backlog {
		ch <- line
	}

	h.nextSub++
	id := h.nextSub
	s.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.streams[executionID]; ok {
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

// Backlog returns a copy of the lines buffered so far for an execution.
func (h *LogHub) Backlog(executionID string) []LogLine {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[executionID]
	if !ok {
		return nil
	}
	out := make([]LogLine, len(s.backlog))
	copy(out, s.backlog)
	return out
}

// Complete marks an execution finished: subscriber channels are closed and
// the stream is scheduled for eviction after the retention window.
func (h *LogHub) Complete(executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[executionID]
	if !ok || s.completed {
		return
	}
	s.completed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.evict = time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.streams, executionID)
	})
}

// Close tears the hub down: all streams are completed and evicted
// immediately and further appends are dropped.
func (h *LogHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, s := range h.streams {
		for subID, ch := range s.subs {
			close(ch)
			delete(s.subs, subID)
		}
		if s.evict != nil {
			s.evict.Stop()
		}
		delete(h.streams, id)
	}
}

func backlogLen(s *logStream) int {
	if s == nil {
		return 0
	}
	return len(s.backlog)
}
