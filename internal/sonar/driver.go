// Package sonar drives an ultrasonic range finder: it fires trigger pulses,
// times the echo from captured edge ticks, and publishes one validated
// reading per completed cycle on a fixed sampling cadence.
//
// Two goroutines share state. The capture context (the echo source's event
// goroutine, standing in for an interrupt) only calls EdgeCapture.OnEdge. The
// sampling goroutine runs Driver.Run and owns everything else, including
// every trigger pulse.
package sonar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// ErrAlreadyAttached is returned when the driver's echo handler is attached
// twice.
var ErrAlreadyAttached = errors.New("echo capture already attached")

// Driver is the context object owning the configuration, the shared capture
// state, the trigger and the watchdog of one sensor channel.
type Driver struct {
	cfg      Config
	clock    timeutil.Clock
	capture  *EdgeCapture
	trigger  *Trigger
	watchdog *Watchdog
	echo     EchoSource
	pub      Publisher

	attachMu sync.Mutex
	attached bool

	cycles        atomic.Uint64
	valid         atomic.Uint64
	invalid       atomic.Uint64
	publishErrors atomic.Uint64
	last          atomic.Pointer[Reading]
	startedAt     atomic.Pointer[time.Time]
}

// Option configures optional Driver dependencies.
type Option func(*Driver)

// WithClock replaces the real clock, for tests and simulation.
func WithClock(c timeutil.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// NewDriver validates cfg and builds a driver around the given hardware. A
// nil publisher discards readings.
func NewDriver(cfg Config, line TriggerLine, echo EchoSource, pub Publisher, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sonar config: %w", err)
	}
	if line == nil || echo == nil {
		return nil, fmt.Errorf("trigger line and echo source are required")
	}
	if pub == nil {
		pub = discard{}
	}

	d := &Driver{
		cfg:     cfg,
		clock:   timeutil.RealClock{},
		capture: &EdgeCapture{},
		echo:    echo,
		pub:     pub,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.trigger = newTrigger(line, d.capture, d.clock, cfg)
	d.watchdog = newWatchdog(d.capture, d.trigger, cfg.WatchdogThreshold)
	return d, nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() Config { return d.cfg }

// Attach installs the capture handler on the echo source. A failure here is
// a startup failure of the driver.
func (d *Driver) Attach() error {
	d.attachMu.Lock()
	defer d.attachMu.Unlock()
	if d.attached {
		return ErrAlreadyAttached
	}
	if err := d.echo.Attach(d.capture.OnEdge); err != nil {
		return fmt.Errorf("failed to attach echo capture: %w", err)
	}
	d.attached = true
	return nil
}

// Detach removes the capture handler. Detaching an unattached driver is a
// no-op.
func (d *Driver) Detach() error {
	d.attachMu.Lock()
	defer d.attachMu.Unlock()
	if !d.attached {
		return nil
	}
	d.attached = false
	return d.echo.Detach()
}

// Run attaches the echo source and runs the sampling loop until ctx is
// cancelled, returning ctx.Err(). Attach errors are returned immediately.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.Attach(); err != nil {
		return err
	}
	defer func() {
		if err := d.Detach(); err != nil {
			monitoring.Logf("sonar: failed to detach echo capture: %v", err)
		}
	}()
	return d.loop(ctx)
}

// loop clears any capture and idle state left by a previous run, waits the
// settle delay, fires the first trigger, then runs one Step per sample
// interval. Cancellation is checked once per iteration, so a stop request
// takes effect within one sample interval plus any trigger pulse in progress.
func (d *Driver) loop(ctx context.Context) error {
	d.capture.Reset()
	d.watchdog.Feed()

	d.clock.Sleep(d.cfg.StartupDelay)
	if err := ctx.Err(); err != nil {
		return err
	}

	now := d.clock.Now()
	d.startedAt.Store(&now)
	d.fire()

	ticker := d.clock.NewTicker(d.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			d.Step()
		}
	}
}

// Step runs one sampling iteration. If a cycle has completed it is consumed,
// converted, published, and the next trigger is fired. Otherwise the idle
// count grows and the watchdog may resynchronise.
func (d *Driver) Step() {
	if cycle, ok := d.capture.Consume(); ok {
		r := d.cfg.NewReading(cycle, d.clock.Now())
		d.record(r)
		if err := d.pub.Publish(r); err != nil {
			d.publishErrors.Add(1)
			monitoring.Logf("sonar: failed to publish reading %d: %v", r.Sequence, err)
		}
		d.watchdog.Feed()
		d.fire()
		return
	}

	if d.watchdog.Idle() {
		monitoring.Logf("sonar: no echo for more than %d iterations, resynchronising", d.cfg.WatchdogThreshold)
		if err := d.watchdog.Recover(); err != nil {
			monitoring.Logf("sonar: watchdog retrigger failed: %v", err)
		}
	}
}

func (d *Driver) fire() {
	if err := d.trigger.Fire(); err != nil {
		monitoring.Logf("sonar: trigger failed: %v", err)
	}
}

func (d *Driver) record(r Reading) {
	d.cycles.Add(1)
	if r.Valid {
		d.valid.Add(1)
	} else {
		d.invalid.Add(1)
	}
	d.last.Store(&r)
	monitoring.Debugf("sonar: %s", r)
}

// LastReading returns the most recent reading, if any.
func (d *Driver) LastReading() (Reading, bool) {
	r := d.last.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}

// Status is a point-in-time view of the driver for observers.
type Status struct {
	Capture            CaptureSnapshot `json:"capture"`
	IdleIterations     int32           `json:"idle_iterations"`
	WatchdogThreshold  int             `json:"watchdog_threshold"`
	Cycles             uint64          `json:"cycles"`
	ValidReadings      uint64          `json:"valid_readings"`
	InvalidReadings    uint64          `json:"invalid_readings"`
	WatchdogRecoveries uint64          `json:"watchdog_recoveries"`
	TriggerPulses      uint64          `json:"trigger_pulses"`
	TriggerErrors      uint64          `json:"trigger_errors"`
	PublishErrors      uint64          `json:"publish_errors"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	LastReading        *Reading        `json:"last_reading,omitempty"`
}

// Status returns counters and the capture snapshot. It is safe to call from
// any goroutine.
func (d *Driver) Status() Status {
	s := Status{
		Capture:            d.capture.Snapshot(),
		IdleIterations:     d.capture.IdleCount(),
		WatchdogThreshold:  d.cfg.WatchdogThreshold,
		Cycles:             d.cycles.Load(),
		ValidReadings:      d.valid.Load(),
		InvalidReadings:    d.invalid.Load(),
		WatchdogRecoveries: d.watchdog.Recoveries(),
		TriggerPulses:      d.trigger.Pulses(),
		TriggerErrors:      d.trigger.Errors(),
		PublishErrors:      d.publishErrors.Load(),
		StartedAt:          d.startedAt.Load(),
	}
	if r, ok := d.LastReading(); ok {
		s.LastReading = &r
	}
	return s
}
