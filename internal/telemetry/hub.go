// Package telemetry fans sonar readings out to live consumers: SSE clients
// on the debug server, a serial link and an MQTT broker.
package telemetry

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/banshee-data/sonar/internal/sonar"
)

// subscriberBuffer is how many lines a slow subscriber may fall behind
// before lines are dropped for it.
const subscriberBuffer = 16

// Hub distributes each published reading, encoded as a JSON line, to every
// subscriber. Publishing never blocks on a subscriber.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan string)}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving lines. The ID is used to
// unsubscribe.
func (h *Hub) Subscribe() (string, <-chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Publish implements sonar.Publisher.
func (h *Hub) Publish(r sonar.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	h.Broadcast(string(b))
	return nil
}

// Broadcast sends a raw line to all subscribers, skipping any whose buffer
// is full.
func (h *Hub) Broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close closes all subscriber channels. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	return nil
}
