package hw

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/banshee-data/sonar/internal/sonar"
)

// edgePoll bounds how long the edge goroutine blocks before checking for a
// detach request.
const edgePoll = 100 * time.Millisecond

func openPeriph(opts Options) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	trig := gpioreg.ByName(opts.TriggerPin)
	if trig == nil {
		return nil, fmt.Errorf("no GPIO trigger pin named: %s", opts.TriggerPin)
	}
	echo := gpioreg.ByName(opts.EchoPin)
	if echo == nil {
		return nil, fmt.Errorf("no GPIO echo pin named: %s", opts.EchoPin)
	}
	if err := trig.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure trigger pin %s: %w", opts.TriggerPin, err)
	}
	e := &periphEcho{pin: echo, hz: uint64(opts.TickFrequency), epoch: time.Now()}
	return &Device{
		Trigger: periphTrigger{pin: trig},
		Echo:    e,
		close: func() error {
			return errors.Join(e.Detach(), trig.Halt(), echo.Halt())
		},
	}, nil
}

type periphTrigger struct {
	pin gpio.PinIO
}

func (t periphTrigger) Set(high bool) error {
	return t.pin.Out(gpio.Level(high))
}

// periphEcho waits for edges on a goroutine and stamps them with the
// monotonic clock on wake-up. Scheduling latency adds jitter that the
// gpiod backend's kernel timestamps avoid.
type periphEcho struct {
	pin   gpio.PinIO
	hz    uint64
	epoch time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (e *periphEcho) Attach(h sonar.EdgeHandler) error {
	if h == nil {
		return errors.New("nil edge handler")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		return sonar.ErrAlreadyAttached
	}
	if err := e.pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return fmt.Errorf("configure echo pin %s: %w", e.pin.Name(), err)
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.watch(h, e.stop, e.done)
	return nil
}

func (e *periphEcho) watch(h sonar.EdgeHandler, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if e.pin.WaitForEdge(edgePoll) {
			h(CaptureTicks(time.Since(e.epoch), e.hz))
		}
	}
}

func (e *periphEcho) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop == nil {
		return nil
	}
	close(e.stop)
	<-e.done
	e.stop, e.done = nil, nil
	return e.pin.In(gpio.PullDown, gpio.NoEdge)
}
