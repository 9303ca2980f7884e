package sonar

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/sonar/internal/timeutil"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type lineEvent struct {
	At   time.Time
	High bool
}

// fakeLine records trigger line transitions against the mock clock.
type fakeLine struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	events []lineEvent
	err    error
}

func (l *fakeLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, lineEvent{At: l.clock.Now(), High: high})
	return nil
}

func (l *fakeLine) Events() []lineEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lineEvent(nil), l.events...)
}

func (l *fakeLine) SetErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// fakeEcho hands the attached handler to the test so it can play the part
// of the capture interrupt.
type fakeEcho struct {
	mu        sync.Mutex
	handler   EdgeHandler
	attachErr error
	detaches  int
}

func (e *fakeEcho) Attach(h EdgeHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attachErr != nil {
		return e.attachErr
	}
	e.handler = h
	return nil
}

func (e *fakeEcho) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = nil
	e.detaches++
	return nil
}

func (e *fakeEcho) Edge(tick uint16) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(tick)
	}
}

func (e *fakeEcho) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler != nil
}

// chanPublisher forwards readings to a buffered channel.
type chanPublisher chan Reading

func (c chanPublisher) Publish(r Reading) error {
	select {
	case c <- r:
		return nil
	default:
		return errors.New("test publisher full")
	}
}

type rig struct {
	clock  *timeutil.MockClock
	line   *fakeLine
	echo   *fakeEcho
	pub    chanPublisher
	driver *Driver
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	clock := timeutil.NewMockClock(testEpoch)
	r := &rig{
		clock: clock,
		line:  &fakeLine{clock: clock},
		echo:  &fakeEcho{},
		pub:   make(chanPublisher, 64),
	}
	d, err := NewDriver(cfg, r.line, r.echo, r.pub, WithClock(clock))
	require.NoError(t, err)
	r.driver = d
	return r
}

// echoPair plays one rising and one falling edge into the capture.
func (r *rig) echoPair(start, end uint16) {
	r.driver.capture.OnEdge(start)
	r.driver.capture.OnEdge(end)
}
