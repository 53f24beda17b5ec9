package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published decision. It is a value; receivers may keep it.
type Event struct {
	SessionID  string     `json:"session_id"`
	Seq        uint64     `json:"seq"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Scores     [7]float64 `json:"scores"`
	At         time.Time  `json:"at"`
}

// queue is a bounded event queue that never blocks the producer: when full,
// the oldest event is evicted to make room.
type queue struct {
	ch      chan Event
	mu      sync.Mutex // serializes producers
	dropped atomic.Uint64
}

func newQueue(size int) *queue {
	if size < 1 {
		size = 1
	}
	return &queue{ch: make(chan Event, size)}
}

// post enqueues ev and reports whether an older event was evicted.
func (q *queue) post(ev Event) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		select {
		case q.ch <- ev:
			return evicted
		default:
		}

		select {
		case <-q.ch:
			q.dropped.Add(1)
			evicted = true
		default:
			// A consumer drained it between the two selects; retry.
		}
	}
}

func (q *queue) events() <-chan Event {
	return q.ch
}
