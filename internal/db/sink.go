package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
)

// ErrSinkFull is returned by Sink.Publish when the write queue is full.
var ErrSinkFull = errors.New("reading sink queue full")

// ErrSinkClosed is returned by Sink.Publish after Close.
var ErrSinkClosed = errors.New("reading sink closed")

// maxBatch bounds how many queued readings are written in one transaction.
const maxBatch = 64

// Sink persists readings on a background goroutine so the sampling loop
// never waits on the disk. It implements sonar.Publisher.
type Sink struct {
	db        *DB
	sessionID string
	queue     chan sonar.Reading
	done      chan struct{}

	mu      sync.RWMutex
	closed  bool
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewSink starts a writer for sessionID with room for buffer queued
// readings.
func NewSink(db *DB, sessionID string, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Sink{
		db:        db,
		sessionID: sessionID,
		queue:     make(chan sonar.Reading, buffer),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// SessionID returns the session readings are written under.
func (s *Sink) SessionID() string { return s.sessionID }

// Publish queues r without blocking.
func (s *Sink) Publish(r sonar.Reading) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- r:
		return nil
	default:
		return ErrSinkFull
	}
}

func (s *Sink) run() {
	defer close(s.done)
	batch := make([]sonar.Reading, 0, maxBatch)
	for r := range s.queue {
		batch = append(batch[:0], r)
	drain:
		for len(batch) < maxBatch {
			select {
			case r, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = append(batch, r)
			default:
				break drain
			}
		}
		if err := s.write(batch); err != nil {
			s.failed.Add(uint64(len(batch)))
			monitoring.Logf("db sink: %v", err)
			continue
		}
		s.written.Add(uint64(len(batch)))
	}
}

func (s *Sink) write(batch []sonar.Reading) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := insertReadings(ctx, tx, s.sessionID, batch); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Written returns how many readings have been committed.
func (s *Sink) Written() uint64 { return s.written.Load() }

// Failed returns how many readings were lost to write errors.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Close stops accepting readings and waits for the queue to drain.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
	return nil
}
