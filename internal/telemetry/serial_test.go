package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/sonar/internal/sonar"
)

func TestSerialLink_Publish(t *testing.T) {
	port := newTestPort()
	link := NewSerialLink(port)

	if err := link.Publish(testReading); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	out := port.Written()
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("expected newline-terminated line, got %q", out)
	}
	var got sonar.Reading
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if got.Sequence != testReading.Sequence {
		t.Errorf("Sequence = %d, want %d", got.Sequence, testReading.Sequence)
	}
}

func TestSerialLink_WriteError(t *testing.T) {
	port := newTestPort()
	port.writeErr = errors.New("unplugged")
	link := NewSerialLink(port)

	if err := link.Publish(testReading); err == nil || !strings.Contains(err.Error(), "unplugged") {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestSerialLink_MonitorExecutesCommands(t *testing.T) {
	port := newTestPort()
	link := NewSerialLink(port)
	cmd := &fakeCommander{}

	done := make(chan error, 1)
	go func() { done <- link.Monitor(context.Background(), cmd) }()

	port.feed("status\n\nbogus\n")

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(port.Written(), "error: unknown command") {
		if time.Now().After(deadline) {
			t.Fatalf("replies not written, got %q", port.Written())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := cmd.Lines(); len(got) != 2 || got[0] != "status" || got[1] != "bogus" {
		t.Errorf("executed %q, want [status bogus]", got)
	}
	if !strings.HasPrefix(port.Written(), "ok status\n") {
		t.Errorf("unexpected output %q", port.Written())
	}

	link.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Monitor returned %v after close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
}

func TestSerialLink_MonitorContextCancel(t *testing.T) {
	port := newTestPort()
	link := NewSerialLink(port)
	defer link.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Monitor(ctx, &fakeCommander{}) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}
