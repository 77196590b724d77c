// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/yourusername/tmichat/internal/transport"
)

// Transport records sent lines and lets a test drive lifecycle events and
// inbound lines by hand. It starts connected.
type Transport struct {
	mu         sync.Mutex
	connected  bool
	sendResult bool
	panicWith  any
	sent       []string
	closed     bool

	lines  chan string
	events chan transport.Event
}

// New creates a connected fake transport whose sends succeed
func New() *Transport {
	return &Transport{
		connected:  true,
		sendResult: true,
		lines:      make(chan string, 64),
		events:     make(chan transport.Event, 16),
	}
}

// Send records line and returns the configured result
func (t *Transport) Send(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.panicWith != nil {
		panic(t.panicWith)
	}
	if !t.sendResult {
		return false
	}
	t.sent = append(t.sent, line)
	return true
}

// IsConnected reports the configured connection state
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect marks the transport connected and emits a Connected event
func (t *Transport) Connect(ctx context.Context) error {
	t.SetConnected(true)
	t.Emit(transport.Event{Kind: transport.Connected})
	return nil
}

// Close marks the transport disconnected
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closed = true
	return nil
}

// Lines returns the inbound line channel
func (t *Transport) Lines() <-chan string {
	return t.lines
}

// Events returns the lifecycle event channel
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// SetConnected changes what IsConnected reports
func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// SetSendResult makes every later Send return ok
func (t *Transport) SetSendResult(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendResult = ok
}

// PanicOnSend makes every later Send panic with v. Pass nil to stop.
func (t *Transport) PanicOnSend(v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.panicWith = v
}

// Emit queues a lifecycle event
func (t *Transport) Emit(ev transport.Event) {
	t.events <- ev
}

// Inject queues an inbound line
func (t *Transport) Inject(line string) {
	t.lines <- line
}

// Sent returns a copy of every successfully sent line
func (t *Transport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

// Closed reports whether Close was called
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Reset forgets sent lines
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
