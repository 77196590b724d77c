package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
)

// Sender is the part of the connection the queue writes to
type Sender interface {
	Send(line string) bool
	IsConnected() bool
}

type queuedMessage struct {
	enqueuedAt time.Time
	msg        *OutboundMessage
}

// MessageQueue is a bounded FIFO of outbound messages drained by a paced pump.
// Each pump tick sends at most one message. Stale messages are dropped and
// messages refused by the limiter are reported through OnThrottled.
type MessageQueue struct {
	mu       sync.Mutex
	queue    []queuedMessage
	capacity int

	cacheItemTimeout time.Duration
	interSendDelay   time.Duration
	limiter          *FixedWindow
	sender           Sender
	logger           output.Logger
	nowFunc          func() time.Time

	hooksMu     sync.RWMutex
	onThrottled []func(ThrottledEvent)
	onSendError []func(*OutboundMessage, error)
	onSent      []func(*OutboundMessage)
	onExpired   []func(*OutboundMessage)
	onRejected  []func(*OutboundMessage, error)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMessageQueue creates a queue draining into sender, gated by limiter.
// Zero durations and capacity in cfg take their DefaultConfig values.
func NewMessageQueue(cfg Config, limiter *FixedWindow, sender Sender, logger output.Logger) *MessageQueue {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = output.NopLogger{}
	}
	return &MessageQueue{
		queue:            make([]queuedMessage, 0, max(0, min(cfg.QueueCapacity, 64))),
		capacity:         cfg.QueueCapacity,
		cacheItemTimeout: cfg.CacheItemTimeout,
		interSendDelay:   cfg.InterSendDelay,
		limiter:          limiter,
		sender:           sender,
		logger:           logger,
		nowFunc:          time.Now,
	}
}

// Enqueue adds a message at the tail. It returns false, storing nothing, when
// msg is nil, the connection is down, or the queue is at capacity. A full
// queue is also reported to OnRejected as a Capacity error.
func (mq *MessageQueue) Enqueue(msg *OutboundMessage) bool {
	if msg == nil {
		return false
	}
	if !mq.sender.IsConnected() {
		return false
	}

	mq.mu.Lock()
	if len(mq.queue) >= mq.capacity {
		mq.mu.Unlock()
		mq.emitRejected(msg, errors.NewCapacityError(mq.capacity))
		return false
	}
	mq.queue = append(mq.queue, queuedMessage{enqueuedAt: mq.nowFunc(), msg: msg})
	mq.mu.Unlock()
	return true
}

// dequeue removes and returns the head of the queue
func (mq *MessageQueue) dequeue() (queuedMessage, bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if len(mq.queue) == 0 {
		return queuedMessage{}, false
	}

	item := mq.queue[0]
	mq.queue[0] = queuedMessage{}
	mq.queue = mq.queue[1:]
	return item, true
}

// Size returns the current queue size
func (mq *MessageQueue) Size() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	return len(mq.queue)
}

// OnThrottled registers fn to receive every throttled message
func (mq *MessageQueue) OnThrottled(fn func(ThrottledEvent)) {
	mq.hooksMu.Lock()
	defer mq.hooksMu.Unlock()
	mq.onThrottled = append(mq.onThrottled, fn)
}

// OnSendError registers fn to receive messages the connection failed to send
func (mq *MessageQueue) OnSendError(fn func(*OutboundMessage, error)) {
	mq.hooksMu.Lock()
	defer mq.hooksMu.Unlock()
	mq.onSendError = append(mq.onSendError, fn)
}

// OnSent registers fn to receive every message handed to the connection
func (mq *MessageQueue) OnSent(fn func(*OutboundMessage)) {
	mq.hooksMu.Lock()
	defer mq.hooksMu.Unlock()
	mq.onSent = append(mq.onSent, fn)
}

// OnExpired registers fn to receive messages dropped for waiting too long
func (mq *MessageQueue) OnExpired(fn func(*OutboundMessage)) {
	mq.hooksMu.Lock()
	defer mq.hooksMu.Unlock()
	mq.onExpired = append(mq.onExpired, fn)
}

// OnRejected registers fn to receive messages refused because the queue was full
func (mq *MessageQueue) OnRejected(fn func(*OutboundMessage, error)) {
	mq.hooksMu.Lock()
	defer mq.hooksMu.Unlock()
	mq.onRejected = append(mq.onRejected, fn)
}

// Start runs the pump until ctx is done or Stop is called.
// A pump that is already running is stopped first.
func (mq *MessageQueue) Start(ctx context.Context) {
	mq.runMu.Lock()
	defer mq.runMu.Unlock()

	mq.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	mq.cancel = cancel
	mq.done = done

	go mq.pump(runCtx, done)
}

// Stop stops the pump and waits for it to exit. Safe to call when not started.
// Queued messages stay queued.
func (mq *MessageQueue) Stop() {
	mq.runMu.Lock()
	defer mq.runMu.Unlock()

	mq.stopLocked()
}

func (mq *MessageQueue) stopLocked() {
	if mq.cancel == nil {
		return
	}
	mq.cancel()
	<-mq.done
	mq.cancel = nil
	mq.done = nil
}

// Running reports whether a pump is active
func (mq *MessageQueue) Running() bool {
	mq.runMu.Lock()
	defer mq.runMu.Unlock()
	return mq.cancel != nil
}

func (mq *MessageQueue) pump(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(mq.interSendDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mq.processNextMessage()
		}
	}
}

// processNextMessage handles at most one queued message
func (mq *MessageQueue) processNextMessage() {
	item, ok := mq.dequeue()
	if !ok {
		return
	}

	if mq.nowFunc().Sub(item.enqueuedAt) > mq.cacheItemTimeout {
		mq.emitExpired(item.msg)
		return
	}

	if mq.limiter.ShouldThrottle() {
		mq.emitThrottled(ThrottledEvent{
			Reason:          ThrottleReason,
			ItemNotSent:     item.msg,
			Period:          mq.limiter.Window(),
			AllowedInPeriod: mq.limiter.Allowed(),
		})
		return
	}

	mq.send(item.msg)
}

// send hands msg to the connection. A panic in the connection is reported as
// a send error so the pump keeps running.
func (mq *MessageQueue) send(msg *OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			mq.emitSendError(msg, errors.NewTransportError("send", fmt.Errorf("panic: %v", r)))
		}
	}()

	if !mq.sender.Send(msg.Line()) {
		mq.emitSendError(msg, errors.NewTransportError("send", errors.New("connection refused the line")))
		return
	}
	mq.emitSent(msg)
}

func (mq *MessageQueue) emitThrottled(ev ThrottledEvent) {
	mq.logger.Warning("Throttled message to #%s (%d per %s)", ev.ItemNotSent.Channel, ev.AllowedInPeriod, ev.Period)

	mq.hooksMu.RLock()
	hooks := mq.onThrottled
	mq.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ev)
	}
}

func (mq *MessageQueue) emitSendError(msg *OutboundMessage, err error) {
	mq.logger.Error("Failed to send message to #%s: %v", msg.Channel, err)

	mq.hooksMu.RLock()
	hooks := mq.onSendError
	mq.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(msg, err)
	}
}

func (mq *MessageQueue) emitSent(msg *OutboundMessage) {
	mq.hooksMu.RLock()
	hooks := mq.onSent
	mq.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(msg)
	}
}

func (mq *MessageQueue) emitExpired(msg *OutboundMessage) {
	mq.hooksMu.RLock()
	hooks := mq.onExpired
	mq.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(msg)
	}
}

func (mq *MessageQueue) emitRejected(msg *OutboundMessage, err error) {
	mq.logger.Warning("Dropped message to #%s: %v", msg.Channel, err)

	mq.hooksMu.RLock()
	hooks := mq.onRejected
	mq.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(msg, err)
	}
}
