package telemetry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
)

// ErrQueueFull is returned by Queue.Publish when the buffer is full and the
// reading was dropped.
var ErrQueueFull = errors.New("telemetry queue full")

// ErrQueueClosed is returned by Queue.Publish after Close.
var ErrQueueClosed = errors.New("telemetry queue closed")

// Queue hands readings to a slower publisher on its own goroutine. Publish
// never blocks, so a broker awaiting acknowledgements or a serial port held
// off by flow control cannot stall the sampling loop. Readings that do not
// fit in the buffer are dropped.
type Queue struct {
	name  string
	pub   sonar.Publisher
	queue chan sonar.Reading
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue starts a writer delivering to pub with room for buffer readings.
// name prefixes its log lines.
func NewQueue(name string, pub sonar.Publisher, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &Queue{
		name:  name,
		pub:   pub,
		queue: make(chan sonar.Reading, buffer),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish queues r without blocking.
func (q *Queue) Publish(r sonar.Reading) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.queue <- r:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for r := range q.queue {
		if err := q.pub.Publish(r); err != nil {
			q.failed.Add(1)
			monitoring.Logf("%s: failed to publish reading %d: %v", q.name, r.Sequence, err)
			continue
		}
		q.sent.Add(1)
	}
}

// Sent returns how many readings the wrapped publisher accepted.
func (q *Queue) Sent() uint64 { return q.sent.Load() }

// Failed returns how many readings the wrapped publisher rejected.
func (q *Queue) Failed() uint64 { return q.failed.Load() }

// Dropped returns how many readings were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting readings and waits for the queued ones to be
// delivered. It does not close the wrapped publisher.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}
