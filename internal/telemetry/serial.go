package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Commander executes a console command line and returns its reply.
// *sonar.Task satisfies it.
type Commander interface {
	Execute(ctx context.Context, line string) (string, error)
}

// SerialLink streams readings as JSON lines over a serial port and accepts
// console commands on the same port.
type SerialLink[T SerialPorter] struct {
	port      T
	writeMu   sync.Mutex
	closing   bool
	closingMu sync.Mutex
}

// NewSerialLink wraps an open port.
func NewSerialLink[T SerialPorter](port T) *SerialLink[T] {
	return &SerialLink[T]{port: port}
}

// OpenSerialLink opens a real serial port at path.
func OpenSerialLink(path string, opts PortOptions) (*SerialLink[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialLink[serial.Port](port), nil
}

// Publish implements sonar.Publisher. The write blocks while the port is
// held off by flow control, so the driver must reach it through a Queue.
func (s *SerialLink[T]) Publish(r sonar.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	return s.WriteLine(string(b))
}

// WriteLine writes line to the port, appending a newline if missing.
func (s *SerialLink[T]) WriteLine(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads command lines from the port, runs them through cmd and
// writes each reply back. It returns when ctx is cancelled, the port
// reaches EOF or the link is closed.
func (s *SerialLink[T]) Monitor(ctx context.Context, cmd Commander) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.isClosing() {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			reply, err := cmd.Execute(ctx, line)
			if err != nil {
				monitoring.Logf("serial console: %q: %v", line, err)
				reply = "error: " + err.Error()
			}
			if err := s.WriteLine(reply); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
}

func (s *SerialLink[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Close closes the serial port.
func (s *SerialLink[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()
	return s.port.Close()
}
