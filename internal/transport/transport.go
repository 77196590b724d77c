// Package transport connects the client to the chat server over WebSocket or
// plain TCP/TLS and exposes the connection as lines plus lifecycle events.
package transport

import (
	"fmt"
	"sync/atomic"
)

// EventKind identifies a connection lifecycle change
type EventKind int

const (
	Connected EventKind = iota + 1
	Reconnected
	Disconnected
	FatalError
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Reconnected:
		return "reconnected"
	case Disconnected:
		return "disconnected"
	case FatalError:
		return "fatal error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a connection lifecycle notification. Err is set for FatalError
// and, when known, for Disconnected.
type Event struct {
	Kind EventKind
	Err  error
}

// connState tracks whether a connection has ever been established so a
// second successful dial is reported as Reconnected.
type connState struct {
	connected atomic.Bool
	dialed    atomic.Bool
}

// markUp records a successful dial and returns the event kind to emit
func (s *connState) markUp() EventKind {
	s.connected.Store(true)
	if s.dialed.Swap(true) {
		return Reconnected
	}
	return Connected
}

func (s *connState) markDown() bool {
	return s.connected.Swap(false)
}

func (s *connState) isUp() bool {
	return s.connected.Load()
}
