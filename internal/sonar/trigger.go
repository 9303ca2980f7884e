package sonar

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sonar/internal/timeutil"
)

// Trigger emits the pulse that starts a measurement cycle.
type Trigger struct {
	line     TriggerLine
	capture  *EdgeCapture
	clock    timeutil.Clock
	preDelay time.Duration
	width    time.Duration

	pulses atomic.Uint64
	errors atomic.Uint64
}

func newTrigger(line TriggerLine, capture *EdgeCapture, clock timeutil.Clock, cfg Config) *Trigger {
	return &Trigger{
		line:     line,
		capture:  capture,
		clock:    clock,
		preDelay: cfg.PreTriggerDelay,
		width:    cfg.PulseWidth,
	}
}

// Fire waits the pre-pulse delay, arms the capture for a new cycle and
// drives one pulse on the trigger line. Neither delay can be cancelled.
//
// A line error is returned for logging only: the missing echo shows up as a
// stalled cycle and the watchdog retriggers.
func (t *Trigger) Fire() error {
	t.clock.Sleep(t.preDelay)
	t.capture.Arm()

	if err := t.line.Set(true); err != nil {
		t.errors.Add(1)
		_ = t.line.Set(false)
		return fmt.Errorf("failed to raise trigger line: %w", err)
	}
	t.clock.Sleep(t.width)
	if err := t.line.Set(false); err != nil {
		t.errors.Add(1)
		return fmt.Errorf("failed to lower trigger line: %w", err)
	}

	t.pulses.Add(1)
	return nil
}

// Pulses returns the number of pulses emitted successfully.
func (t *Trigger) Pulses() uint64 { return t.pulses.Load() }

// Errors returns the number of failed line writes.
func (t *Trigger) Errors() uint64 { return t.errors.Load() }
