package hw

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// burstDelay is the time an HC-SR04 style module spends emitting its
// ultrasonic burst before raising the echo line.
const burstDelay = 460 * time.Microsecond

// SimOptions configures a SimSensor.
type SimOptions struct {
	Clock         timeutil.Clock
	TickFrequency float64
	SpeedOfSound  float64

	// Distance reports the target distance in metres at the moment of the
	// trigger. Nil selects a fixed 1 m target.
	Distance func(at time.Time) float64

	// DropRate is the probability in [0, 1] that an echo is never returned.
	DropRate float64
	Seed     uint64

	// Async delivers echo edges from a separate goroutine after the simulated
	// flight time, like a real interrupt would. The wait goes through Clock,
	// so under a MockClock it advances mock time instead of blocking. When
	// false, edges are delivered synchronously from the trigger's falling edge.
	Async bool
}

// SimSensor emulates an ultrasonic module. It implements both the trigger
// line and the echo source: a trigger pulse schedules a rising and a falling
// edge whose capture ticks correspond to the target distance.
type SimSensor struct {
	opts  SimOptions
	epoch time.Time

	mu      sync.Mutex
	high    bool
	handler sonar.EdgeHandler
	rng     *rand.Rand
	pending sync.WaitGroup
	closed  bool
}

// NewSimSensor creates a simulated sensor. Zero options fall back to the
// default driver timing.
func NewSimSensor(opts SimOptions) *SimSensor {
	def := sonar.DefaultConfig()
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.TickFrequency <= 0 {
		opts.TickFrequency = def.TickFrequency
	}
	if opts.SpeedOfSound <= 0 {
		opts.SpeedOfSound = def.SpeedOfSound
	}
	if opts.Distance == nil {
		opts.Distance = func(time.Time) float64 { return 1.0 }
	}
	return &SimSensor{
		opts:  opts,
		epoch: opts.Clock.Now(),
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// Set drives the simulated trigger line. The echo is scheduled on the
// high-to-low transition.
func (s *SimSensor) Set(high bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("sim sensor closed")
	}
	fell := s.high && !high
	s.high = high
	h := s.handler
	drop := s.opts.DropRate > 0 && s.rng.Float64() < s.opts.DropRate
	s.mu.Unlock()

	if !fell || h == nil || drop {
		return nil
	}

	now := s.opts.Clock.Now()
	d := s.opts.Distance(now)
	flight := time.Duration(2 * d / s.opts.SpeedOfSound * float64(time.Second))
	rise := s.ticksAt(now.Add(burstDelay))
	fall := s.ticksAt(now.Add(burstDelay + flight))

	if !s.opts.Async {
		h(rise)
		h(fall)
		return nil
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.opts.Clock.Sleep(burstDelay + flight)
		h(rise)
		h(fall)
	}()
	return nil
}

func (s *SimSensor) ticksAt(t time.Time) uint16 {
	return CaptureTicks(t.Sub(s.epoch), uint64(s.opts.TickFrequency))
}

// Attach installs the edge handler.
func (s *SimSensor) Attach(h sonar.EdgeHandler) error {
	if h == nil {
		return errors.New("nil edge handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return sonar.ErrAlreadyAttached
	}
	s.handler = h
	return nil
}

// Detach removes the edge handler and waits for in-flight echoes.
func (s *SimSensor) Detach() error {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	s.pending.Wait()
	return nil
}

// Close detaches and rejects further trigger pulses.
func (s *SimSensor) Close() error {
	err := s.Detach()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// SweepProfile returns a distance function that oscillates between min and
// max with the given period, starting at the clock's current time.
func SweepProfile(clock timeutil.Clock, min, max float64, period time.Duration) func(time.Time) float64 {
	start := clock.Now()
	mid := (min + max) / 2
	amp := (max - min) / 2
	return func(at time.Time) float64 {
		phase := 2 * math.Pi * float64(at.Sub(start)) / float64(period)
		d := mid + amp*math.Sin(phase)
		monitoring.Debugf("sim target %.3fm", d)
		return d
	}
}
