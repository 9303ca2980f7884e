package sonar

import (
	"fmt"
	"math"
	"time"
)

// MaxTick is the largest value of the 16-bit free-running capture counter.
const MaxTick = math.MaxUint16

// Config holds the timing and geometry constants of one sensor channel. It is
// copied into the Driver at construction and never modified afterwards.
type Config struct {
	// TickFrequency is the capture timer rate in ticks per second.
	TickFrequency float64
	// PreTriggerDelay is waited before the trigger line goes high.
	PreTriggerDelay time.Duration
	// PulseWidth is how long the trigger line is held high.
	PulseWidth time.Duration
	// SampleInterval is the sampling loop period.
	SampleInterval time.Duration
	// StartupDelay lets the sensor settle after power-up before the first
	// trigger.
	StartupDelay time.Duration
	// WatchdogThreshold is the number of idle iterations tolerated before
	// the watchdog forces a resynchronisation.
	WatchdogThreshold int
	// SpeedOfSound in metres per second.
	SpeedOfSound float64
	// MinDistance and MaxDistance bound a valid reading, in metres.
	MinDistance float64
	MaxDistance float64
	// SensorType tags every published reading.
	SensorType SensorType
}

// DefaultConfig returns the constants of an HC-SR04 class transducer on a
// 1 MHz capture timer.
func DefaultConfig() Config {
	return Config{
		TickFrequency:     1_000_000,
		PreTriggerDelay:   5 * time.Millisecond,
		PulseWidth:        10 * time.Microsecond,
		SampleInterval:    20 * time.Millisecond,
		StartupDelay:      300 * time.Millisecond,
		WatchdogThreshold: 20,
		SpeedOfSound:      340,
		MinDistance:       0.07,
		MaxDistance:       3.0,
		SensorType:        SensorUltrasound,
	}
}

// DistancePerTick is the one-way distance covered by sound during one timer
// tick (the echo travels out and back, hence the halving).
func (c Config) DistancePerTick() float64 {
	return c.SpeedOfSound / (2 * c.TickFrequency)
}

// Validate checks the configuration for values the driver cannot run with.
func (c Config) Validate() error {
	if c.TickFrequency <= 0 {
		return fmt.Errorf("tick frequency must be positive, got %v", c.TickFrequency)
	}
	if c.PulseWidth <= 0 {
		return fmt.Errorf("pulse width must be positive, got %v", c.PulseWidth)
	}
	if c.PreTriggerDelay < 0 {
		return fmt.Errorf("pre-trigger delay must not be negative, got %v", c.PreTriggerDelay)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.SampleInterval)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("startup delay must not be negative, got %v", c.StartupDelay)
	}
	if c.WatchdogThreshold < 1 {
		return fmt.Errorf("watchdog threshold must be at least 1, got %d", c.WatchdogThreshold)
	}
	if c.SpeedOfSound <= 0 {
		return fmt.Errorf("speed of sound must be positive, got %v", c.SpeedOfSound)
	}
	if c.MinDistance < 0 || c.MaxDistance <= c.MinDistance {
		return fmt.Errorf("distance bounds must satisfy 0 <= min < max, got [%v, %v]", c.MinDistance, c.MaxDistance)
	}
	// An echo longer than one counter period is indistinguishable from a
	// short one after wraparound.
	if limit := MaxTick * c.DistancePerTick(); c.MaxDistance > limit {
		return fmt.Errorf("max distance %.3fm exceeds the %.3fm a 16-bit counter can time at %v Hz", c.MaxDistance, limit, c.TickFrequency)
	}
	if c.SensorType == "" {
		return fmt.Errorf("sensor type must be set")
	}
	return nil
}
