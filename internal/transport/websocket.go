package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
)

// DefaultWebSocketURL is the chat server's secure WebSocket endpoint
const DefaultWebSocketURL = "wss://irc-ws.chat.twitch.tv:443"

const (
	writeTimeout   = 10 * time.Second
	lineBufferSize = 256
)

// WebSocket is a transport over a single WebSocket connection. Each text
// frame may carry several CR-LF separated lines.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	logger output.Logger
	state  connState

	mu   sync.Mutex
	conn *websocket.Conn

	lines     chan string
	events    chan Event
	stop      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket creates a WebSocket transport for url. An empty url uses DefaultWebSocketURL.
func NewWebSocket(url string, logger output.Logger) *WebSocket {
	if url == "" {
		url = DefaultWebSocketURL
	}
	if logger == nil {
		logger = output.NopLogger{}
	}
	return &WebSocket{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger,
		lines:  make(chan string, lineBufferSize),
		events: make(chan Event, 8),
		stop:   make(chan struct{}),
	}
}

// Connect dials the server and starts reading. It emits Connected, or
// Reconnected when a previous Connect succeeded.
func (w *WebSocket) Connect(ctx context.Context) error {
	select {
	case <-w.stop:
		return errors.NewTransportError("connect", errors.New("transport closed"))
	default:
	}

	w.logger.Info("Connecting to %s...", w.url)
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return errors.NewTransportError("connect", err)
	}

	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.mu.Unlock()

	kind := w.state.markUp()
	go w.readLoop(conn)
	w.emit(Event{Kind: kind})
	return nil
}

// Send writes one line. It returns false when not connected or the write fails.
func (w *WebSocket) Send(line string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || !w.state.isUp() {
		return false
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n")); err != nil {
		w.logger.Error("WebSocket write failed: %v", err)
		return false
	}
	return true
}

// IsConnected reports whether the connection is up
func (w *WebSocket) IsConnected() bool {
	return w.state.isUp()
}

// Lines returns inbound lines without CR-LF
func (w *WebSocket) Lines() <-chan string {
	return w.lines
}

// Events returns lifecycle events
func (w *WebSocket) Events() <-chan Event {
	return w.events
}

// Close sends a close frame and shuts the connection. The transport cannot
// be reused afterwards.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() { close(w.stop) })
	w.state.markDown()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			w.connectionLost(conn, err)
			return
		}

		for _, line := range strings.Split(string(payload), "\r\n") {
			if line == "" {
				continue
			}
			select {
			case w.lines <- line:
			case <-w.stop:
				return
			}
		}
	}
}

// connectionLost reports a read failure on the current connection. A failure
// on a connection that was already replaced or closed is ignored.
func (w *WebSocket) connectionLost(conn *websocket.Conn, err error) {
	w.mu.Lock()
	current := w.conn == conn
	w.mu.Unlock()

	if !current || !w.state.markDown() {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		w.emit(Event{Kind: Disconnected, Err: err})
		return
	}
	if websocket.IsUnexpectedCloseError(err) {
		w.emit(Event{Kind: FatalError, Err: err})
		return
	}
	w.emit(Event{Kind: Disconnected, Err: err})
}

func (w *WebSocket) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}
