package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
	"gopkg.in/irc.v4"
)

// DefaultTLSAddress is the chat server's IRC over TLS endpoint
const DefaultTLSAddress = "irc.chat.twitch.tv:6697"

// maxLineLength bounds one inbound line; tag-heavy lines can exceed the classic 512 bytes.
const maxLineLength = 64 * 1024

// TCP is a transport over a plain or TLS TCP connection
type TCP struct {
	address string
	useTLS  bool
	logger  output.Logger
	state   connState

	mu     sync.Mutex
	conn   net.Conn
	writer *irc.Writer

	lines     chan string
	events    chan Event
	stop      chan struct{}
	closeOnce sync.Once
}

// NewTCP creates a TCP transport for address ("host:port")
func NewTCP(address string, useTLS bool, logger output.Logger) *TCP {
	if address == "" {
		address = DefaultTLSAddress
	}
	if logger == nil {
		logger = output.NopLogger{}
	}
	return &TCP{
		address: address,
		useTLS:  useTLS,
		logger:  logger,
		lines:   make(chan string, lineBufferSize),
		events:  make(chan Event, 8),
		stop:    make(chan struct{}),
	}
}

// Connect dials the server and starts reading. It emits Connected, or
// Reconnected when a previous Connect succeeded.
func (t *TCP) Connect(ctx context.Context) error {
	select {
	case <-t.stop:
		return errors.NewTransportError("connect", errors.New("transport closed"))
	default:
	}

	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: time.Minute}

	var conn net.Conn
	var err error
	if t.useTLS {
		host, _, splitErr := net.SplitHostPort(t.address)
		if splitErr != nil {
			return errors.NewTransportError("connect", splitErr)
		}
		t.logger.Info("Connecting to %s with TLS...", t.address)
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", t.address)
	} else {
		t.logger.Info("Connecting to %s...", t.address)
		conn, err = dialer.DialContext(ctx, "tcp", t.address)
	}
	if err != nil {
		return errors.NewTransportError("connect", err)
	}

	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn = conn
	t.writer = irc.NewWriter(conn)
	t.mu.Unlock()

	kind := t.state.markUp()
	go t.readLoop(conn)
	t.emit(Event{Kind: kind})
	return nil
}

// Send writes one line. It returns false when not connected or the write fails.
func (t *TCP) Send(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.writer == nil || !t.state.isUp() {
		return false
	}

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.writer.Write(line); err != nil {
		t.logger.Error("TCP write failed: %v", err)
		return false
	}
	return true
}

// IsConnected reports whether the connection is up
func (t *TCP) IsConnected() bool {
	return t.state.isUp()
}

// Lines returns inbound lines without CR-LF
func (t *TCP) Lines() <-chan string {
	return t.lines
}

// Events returns lifecycle events
func (t *TCP) Events() <-chan Event {
	return t.events
}

// Close shuts the connection. The transport cannot be reused afterwards.
func (t *TCP) Close() error {
	t.closeOnce.Do(func() { close(t.stop) })
	t.state.markDown()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.writer = nil
	return err
}

func (t *TCP) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineLength)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		select {
		case t.lines <- line:
		case <-t.stop:
			return
		}
	}

	err := scanner.Err()
	t.mu.Lock()
	current := t.conn == conn
	t.mu.Unlock()
	if !current || !t.state.markDown() {
		return
	}
	if errors.Is(err, bufio.ErrTooLong) {
		t.emit(Event{Kind: FatalError, Err: err})
		return
	}
	t.emit(Event{Kind: Disconnected, Err: err})
}

func (t *TCP) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}
