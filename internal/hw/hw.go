// Package hw provides the trigger line and echo capture backends for the
// sonar driver: Linux GPIO character devices via gpiod, periph.io host
// drivers, and a simulated sensor for development without hardware.
package hw

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/banshee-data/sonar/internal/sonar"
)

// Backend names accepted by Open.
const (
	BackendSim    = "sim"
	BackendGPIOD  = "gpiod"
	BackendPeriph = "periph"
)

// ErrUnsupported is returned when a backend is not available on this
// platform.
var ErrUnsupported = errors.New("hardware backend not supported on this platform")

// Options selects and configures a hardware backend.
type Options struct {
	Backend string `json:"backend"`

	// gpiod: chip name and line offsets.
	Chip          string `json:"chip"`
	TriggerOffset int    `json:"trigger_offset"`
	EchoOffset    int    `json:"echo_offset"`

	// periph: pin names as registered with gpioreg (e.g. "GPIO17").
	TriggerPin string `json:"trigger_pin"`
	EchoPin    string `json:"echo_pin"`

	// TickFrequency is the rate of the emulated 16-bit capture counter.
	TickFrequency float64 `json:"-"`

	Sim SimOptions `json:"-"`
}

// Device bundles the two halves of a sensor connection.
type Device struct {
	Trigger sonar.TriggerLine
	Echo    sonar.EchoSource
	close   func() error
}

// Close releases the underlying lines or pins.
func (d *Device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// Open builds the device for the selected backend. Failures here are
// hardware initialisation failures and prevent the driver from starting.
func Open(opts Options) (*Device, error) {
	if opts.TickFrequency <= 0 {
		return nil, fmt.Errorf("tick frequency must be positive, got %v", opts.TickFrequency)
	}
	switch opts.Backend {
	case BackendSim, "":
		s := NewSimSensor(opts.Sim)
		return &Device{Trigger: s, Echo: s, close: s.Close}, nil
	case BackendGPIOD:
		return openGPIOD(opts)
	case BackendPeriph:
		return openPeriph(opts)
	default:
		return nil, fmt.Errorf("unknown hardware backend %q", opts.Backend)
	}
}

// CaptureTicks converts a monotonic event timestamp into the value a 16-bit
// free-running counter at hz would have latched at that instant.
func CaptureTicks(ts time.Duration, hz uint64) uint16 {
	if ts < 0 {
		ts = 0
	}
	hi, lo := bits.Mul64(uint64(ts), hz)
	q, _ := bits.Div64(hi%uint64(time.Second), lo, uint64(time.Second))
	return uint16(q)
}
