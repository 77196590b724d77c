package irc

import "sync"

// ConnectionState remembers whether the client has been connected before, so
// a connect after the first one can be treated as a reconnect.
type ConnectionState struct {
	mu            sync.Mutex
	connected     bool
	everConnected bool
}

// MarkConnected records a connect and reports whether it was the first
func (s *ConnectionState) MarkConnected() (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first = !s.everConnected
	s.connected = true
	s.everConnected = true
	return first
}

// MarkDisconnected records a disconnect
func (s *ConnectionState) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// Connected reports whether the last event was a connect
func (s *ConnectionState) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// HasConnected reports whether a connect was ever recorded
func (s *ConnectionState) HasConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everConnected
}

// Reset forgets all history
func (s *ConnectionState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.everConnected = false
}
