package sonar

import (
	"errors"
	"fmt"
	"time"
)

// SensorType tags a reading with the kind of range finder that produced it.
type SensorType string

const (
	SensorUltrasound SensorType = "ultrasound"
	SensorLaser      SensorType = "laser"
)

// Reading is one published range sample. It is built once per completed
// cycle and handed to publishers by value.
type Reading struct {
	Timestamp    time.Time  `json:"timestamp"`
	Distance     float64    `json:"distance_m"`
	Valid        bool       `json:"valid"`
	MinDistance  float64    `json:"min_distance_m"`
	MaxDistance  float64    `json:"max_distance_m"`
	Type         SensorType `json:"type"`
	ElapsedTicks uint32     `json:"elapsed_ticks"`
	Sequence     uint32     `json:"sequence"`
}

func (r Reading) String() string {
	return fmt.Sprintf("seq=%d distance=%.3fm valid=%t ticks=%d", r.Sequence, r.Distance, r.Valid, r.ElapsedTicks)
}

// Publisher receives readings from the sampling loop. Publish is called on
// the loop goroutine, so implementations must return promptly.
type Publisher interface {
	Publish(Reading) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Reading) error

func (f PublisherFunc) Publish(r Reading) error { return f(r) }

// MultiPublisher fans a reading out to every publisher in order. A failing
// publisher does not stop the rest.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(r Reading) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Publish(Reading) error { return nil }
