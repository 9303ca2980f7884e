package sonar

import "sync/atomic"

// Watchdog detects a stalled cycle (a lost edge, or no echo at all) by
// counting idle sampling iterations, and resynchronises the capture.
type Watchdog struct {
	capture   *EdgeCapture
	trigger   *Trigger
	threshold int32

	recoveries atomic.Uint64
}

func newWatchdog(capture *EdgeCapture, trigger *Trigger, threshold int) *Watchdog {
	return &Watchdog{
		capture:   capture,
		trigger:   trigger,
		threshold: int32(threshold),
	}
}

// Idle records one iteration without a completed cycle and reports whether
// the idle count now strictly exceeds the threshold.
func (w *Watchdog) Idle() bool {
	return w.capture.idleTick() > w.threshold
}

// Feed clears the idle count after a completed cycle.
func (w *Watchdog) Feed() {
	w.capture.resetIdle()
}

// Recover forces the capture back to awaiting a rising edge, clears the idle
// count and fires a fresh trigger. A cycle completing in the instant before
// the reset is discarded; the retrigger replaces it.
func (w *Watchdog) Recover() error {
	w.capture.Reset()
	w.capture.resetIdle()
	w.recoveries.Add(1)
	return w.trigger.Fire()
}

// Recoveries returns how many times the watchdog has fired.
func (w *Watchdog) Recoveries() uint64 { return w.recoveries.Load() }
