package irc

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
	"github.com/yourusername/tmichat/internal/protocol"
	"github.com/yourusername/tmichat/internal/ratelimit"
	"github.com/yourusername/tmichat/internal/splitter"
	"github.com/yourusername/tmichat/internal/transport"
)

// Config holds what the Client needs beyond its collaborators
type Config struct {
	Nick         string
	OAuthToken   string
	Capabilities []string
	JoinInterval time.Duration
	Throttle     ratelimit.Config

	// MaxMessageLength is the per-message character limit; longer bodies are
	// sent as several messages. Zero uses the server's limit.
	MaxMessageLength int
}

// MessageHandler receives parsed inbound messages
type MessageHandler func(*protocol.Message)

// Client ties a transport to the channel manager and the outbound queue.
// It logs in and starts both engines when the transport connects, stops
// them when it disconnects, and routes inbound lines to the engines and to
// registered handlers.
type Client struct {
	transport LifecycleTransport
	logger    output.Logger
	auth      *Authenticator
	channels  *ChannelManager
	queue     *ratelimit.MessageQueue
	splitter  *splitter.Splitter
	state     ConnectionState

	hooksMu        sync.RWMutex
	handlers       map[protocol.Command][]MessageHandler
	anyHandlers    []MessageHandler
	onError        []func(error)
	onConnected    []func(first bool)
	onDisconnected []func()
}

// NewClient creates a client over t. store may be nil.
func NewClient(cfg Config, t LifecycleTransport, logger output.Logger, store ChannelStore) *Client {
	if logger == nil {
		logger = output.NopLogger{}
	}

	c := &Client{
		transport: t,
		logger:    logger,
		auth:      NewAuthenticator(cfg.Nick, cfg.OAuthToken, cfg.Capabilities, logger),
		channels:  NewChannelManager(t, logger, store, cfg.JoinInterval),
		queue:     ratelimit.New(cfg.Throttle, t, logger),
		splitter:  splitter.New(cfg.MaxMessageLength),
		handlers:  make(map[protocol.Command][]MessageHandler),
	}
	c.channels.OnJoinError(func(_ string, err error) { c.emitError(err) })
	return c
}

// Channels returns the channel manager
func (c *Client) Channels() *ChannelManager {
	return c.channels
}

// Queue returns the outbound message queue
func (c *Client) Queue() *ratelimit.MessageQueue {
	return c.queue
}

// Nick returns the nick the client logs in with
func (c *Client) Nick() string {
	return c.auth.Nick()
}

// Run connects the transport and processes its events and lines until ctx is
// done or the transport reports a fatal error.
func (c *Client) Run(ctx context.Context) error {
	if err := c.channels.LoadDesired(); err != nil {
		c.logger.Warning("Failed to load saved channels: %v", err)
	}

	if err := c.transport.Connect(ctx); err != nil {
		return errors.NewTransportError("connect", err)
	}

	events := c.transport.Events()
	lines := c.transport.Lines()

	for {
		select {
		case <-ctx.Done():
			c.stopEngines()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				c.stopEngines()
				return nil
			}
			if err := c.HandleEvent(ctx, ev); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.HandleLine(line)
		}
	}
}

// HandleEvent reacts to a transport lifecycle event. It returns the error
// carried by a FatalError event.
func (c *Client) HandleEvent(ctx context.Context, ev transport.Event) error {
	switch ev.Kind {
	case transport.Connected, transport.Reconnected:
		first := c.state.MarkConnected()
		if first {
			c.logger.Success("Connected")
		} else {
			c.logger.Success("Reconnected")
		}

		if err := c.auth.Login(c.transport); err != nil {
			c.emitError(err)
			return nil
		}

		c.queue.Start(ctx)
		c.channels.Stop()
		if err := c.channels.Start(ctx); err != nil {
			c.emitError(err)
		}

		c.hooksMu.RLock()
		hooks := c.onConnected
		c.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn(first)
		}

	case transport.Disconnected:
		c.logger.Warning("Disconnected: %v", ev.Err)
		c.stopEngines()

		c.hooksMu.RLock()
		hooks := c.onDisconnected
		c.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn()
		}

	case transport.FatalError:
		c.stopEngines()
		err := errors.NewTransportError("connection", ev.Err)
		c.emitError(err)
		return err
	}
	return nil
}

func (c *Client) stopEngines() {
	c.state.MarkDisconnected()
	c.queue.Stop()
	c.channels.Stop()
}

// HandleLine parses one inbound line, updates the engines and dispatches the
// message to registered handlers. Lines that cannot be parsed are logged and dropped.
func (c *Client) HandleLine(raw string) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		c.logger.Warning("Dropped unparseable line: %v", err)
		return
	}

	if err := c.auth.HandleMessage(msg); err != nil {
		c.emitError(err)
	}

	switch msg.Command {
	case protocol.Ping:
		c.transport.Send("PONG :" + msg.Payload())

	case protocol.Join:
		if msg.User == c.auth.Nick() {
			c.logger.Info("Server accepted JOIN for #%s", msg.Channel())
		}

	case protocol.Part:
		if msg.User == c.auth.Nick() {
			c.channels.PartCompleted(msg.Channel())
		}

	case protocol.UserState:
		channel := msg.Channel()
		// No-op unless the channel awaits confirmation or holds a join exception.
		c.channels.JoinCompleted(channel)
		if ch := c.channels.GetJoinedChannel(channel); ch != nil {
			if drained := ch.MarkUserState(msg.Tags); len(drained) > 0 {
				c.logger.Info("User state for #%s arrived after %d sent messages", channel, len(drained))
			}
		}

	case protocol.Notice:
		c.handleNotice(msg)

	case protocol.Reconnect:
		c.logger.Warning("Server asked us to reconnect")
		c.emitError(errors.NewTransportError("session", errors.New("server requested reconnect")))

	case protocol.Privmsg:
		if text, ok := msg.ActionText(); ok {
			c.logger.ChannelMessage(msg.Channel(), msg.User, fmt.Sprintf("* %s %s", msg.User, text))
		} else {
			c.logger.ChannelMessage(msg.Channel(), msg.User, msg.Trailing())
		}
	}

	c.dispatch(msg)
}

// joinRefusals are NOTICE msg-ids meaning a JOIN will never be confirmed
var joinRefusals = map[string]bool{
	"msg_banned":            true,
	"msg_channel_suspended": true,
	"msg_room_not_found":    true,
	"tos_ban":               true,
}

func (c *Client) handleNotice(msg *protocol.Message) {
	id, _ := msg.Tag("msg-id")
	if !joinRefusals[id] {
		return
	}

	channel := msg.Channel()
	c.logger.Warning("Join refused for #%s: %s", channel, msg.Trailing())
	c.channels.JoinCanceled(channel)
}

func (c *Client) dispatch(msg *protocol.Message) {
	c.hooksMu.RLock()
	handlers := c.handlers[msg.Command]
	all := c.anyHandlers
	c.hooksMu.RUnlock()

	for _, fn := range handlers {
		c.safeCall(fn, msg)
	}
	for _, fn := range all {
		c.safeCall(fn, msg)
	}
}

// safeCall keeps a panicking handler from killing the read loop
func (c *Client) safeCall(fn MessageHandler, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.emitError(errors.NewUnexpectedError(fmt.Errorf("handler for %s panicked: %v", msg.Command, r)))
		}
	}()
	fn(msg)
}

func (c *Client) emitError(err error) {
	c.hooksMu.RLock()
	hooks := c.onError
	c.hooksMu.RUnlock()

	if len(hooks) == 0 {
		c.logger.Error("%v", err)
		return
	}
	for _, fn := range hooks {
		fn(err)
	}
}

// OnMessage registers fn for every inbound message with the given command
func (c *Client) OnMessage(cmd protocol.Command, fn MessageHandler) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.handlers[cmd] = append(c.handlers[cmd], fn)
}

// OnAnyMessage registers fn for every inbound message
func (c *Client) OnAnyMessage(fn MessageHandler) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.anyHandlers = append(c.anyHandlers, fn)
}

// OnError registers fn for transport, login and handler errors
func (c *Client) OnError(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnConnected registers fn for every connect; first is false on reconnects
func (c *Client) OnConnected(fn func(first bool)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnected = append(c.onConnected, fn)
}

// OnDisconnected registers fn for every disconnect
func (c *Client) OnDisconnected(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onDisconnected = append(c.onDisconnected, fn)
}

// OnThrottled registers fn for messages dropped by the rate limiter
func (c *Client) OnThrottled(fn func(ratelimit.ThrottledEvent)) {
	c.queue.OnThrottled(fn)
}

// JoinChannel asks the channel manager to join name
func (c *Client) JoinChannel(name string) {
	c.channels.JoinChannel(name)
}

// JoinChannels asks the channel manager to join every name
func (c *Client) JoinChannels(names []string) {
	c.channels.JoinChannels(names)
}

// LeaveChannel asks the channel manager to leave name
func (c *Client) LeaveChannel(name string) {
	c.channels.LeaveChannel(name)
}

// GetJoinedChannel returns the handle for a joined channel, or nil
func (c *Client) GetJoinedChannel(name string) *JoinedChannel {
	return c.channels.GetJoinedChannel(name)
}

// JoinedChannels returns a snapshot of joined channels
func (c *Client) JoinedChannels() []*JoinedChannel {
	return c.channels.JoinedChannels()
}

// SendMessage queues body for channel, split into several messages when it
// is longer than the character limit. It returns false when nothing or only
// part of body was queued: empty input, an anonymous login, a disconnected
// transport or a full queue.
func (c *Client) SendMessage(channel, body string) bool {
	if body == "" {
		return false
	}
	return c.sendParts(channel, c.splitter.Split(body))
}

// SendAction queues a /me action for channel. Long text is split before
// framing so every part is a complete action.
func (c *Client) SendAction(channel, text string) bool {
	if text == "" {
		return false
	}
	framing := utf8.RuneCountInString(protocol.FormatAction(""))
	parts := splitter.New(c.splitter.MaxLength() - framing).Split(text)
	for i, p := range parts {
		parts[i] = protocol.FormatAction(p)
	}
	return c.sendParts(channel, parts)
}

func (c *Client) sendParts(channel string, parts []string) bool {
	n := NormalizeChannel(channel)
	if n == "" {
		return false
	}
	if c.auth.Anonymous() {
		c.logger.Warning("Anonymous logins cannot send to #%s", n)
		return false
	}

	ch := c.channels.GetJoinedChannel(n)
	for _, part := range parts {
		if !c.queue.Enqueue(ratelimit.NewOutboundMessage(n, c.auth.Nick(), part)) {
			return false
		}
		if ch != nil && !ch.HasUserState() {
			ch.AddPendingMessage(part)
		}
	}
	return true
}

// Close stops both engines and closes the transport
func (c *Client) Close() error {
	c.stopEngines()
	return c.transport.Close()
}
