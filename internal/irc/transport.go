package irc

import (
	"context"

	"github.com/yourusername/tmichat/internal/transport"
)

// Transport is the connection as the engines see it
type Transport interface {
	Send(line string) bool
	IsConnected() bool
}

// LifecycleTransport is a Transport the Client can drive end to end
type LifecycleTransport interface {
	Transport
	Connect(ctx context.Context) error
	Close() error
	Lines() <-chan string
	Events() <-chan transport.Event
}
