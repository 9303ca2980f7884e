//go:build linux

package hw

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/gpiod"

	"github.com/banshee-data/sonar/internal/sonar"
)

const consumer = "sonar"

func openGPIOD(opts Options) (*Device, error) {
	chipName := opts.Chip
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiod.NewChip(chipName, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chipName, err)
	}
	trig, err := chip.RequestLine(opts.TriggerOffset, gpiod.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger line %d: %w", opts.TriggerOffset, err)
	}
	echo := &gpiodEcho{
		chip:   chip,
		offset: opts.EchoOffset,
		hz:     uint64(opts.TickFrequency),
	}
	return &Device{
		Trigger: gpiodTrigger{line: trig},
		Echo:    echo,
		close: func() error {
			return errors.Join(echo.Detach(), trig.Close(), chip.Close())
		},
	}, nil
}

type gpiodTrigger struct {
	line *gpiod.Line
}

func (t gpiodTrigger) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return t.line.SetValue(v)
}

// gpiodEcho requests the echo line with edge detection on Attach. The kernel
// timestamps each edge; those timestamps stand in for the hardware capture
// counter.
type gpiodEcho struct {
	chip   *gpiod.Chip
	offset int
	hz     uint64

	mu   sync.Mutex
	line *gpiod.Line
}

func (e *gpiodEcho) Attach(h sonar.EdgeHandler) error {
	if h == nil {
		return errors.New("nil edge handler")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line != nil {
		return sonar.ErrAlreadyAttached
	}
	hz := e.hz
	line, err := e.chip.RequestLine(e.offset,
		gpiod.AsInput,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			h(CaptureTicks(evt.Timestamp, hz))
		}))
	if err != nil {
		return fmt.Errorf("request echo line %d: %w", e.offset, err)
	}
	e.line = line
	return nil
}

func (e *gpiodEcho) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line == nil {
		return nil
	}
	err := e.line.Close()
	e.line = nil
	return err
}
