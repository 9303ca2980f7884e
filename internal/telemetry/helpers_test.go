package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/banshee-data/sonar/internal/sonar"
)

var testReading = sonar.Reading{
	Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	Distance:     0.17,
	Valid:        true,
	MinDistance:  0.07,
	MaxDistance:  3.0,
	Type:         sonar.SensorUltrasound,
	ElapsedTicks: 1000,
	Sequence:     7,
}

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// testPort is a SerialPorter fed through a pipe so Monitor blocks like it
// would on a real device.
type testPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func newTestPort() *testPort {
	r, w := io.Pipe()
	return &testPort{r: r, w: w}
}

func (p *testPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *testPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *testPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.w.Close()
}

func (p *testPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// feed simulates the remote end sending text.
func (p *testPort) feed(s string) { p.w.Write([]byte(s)) }

type fakeCommander struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeCommander) Execute(_ context.Context, line string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	if line == "bogus" {
		return "", errors.New("unknown command")
	}
	return "ok " + line, nil
}

func (f *fakeCommander) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}
