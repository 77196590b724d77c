package sink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/yourusername/tmichat/internal/circuitbreaker"
	"github.com/yourusername/tmichat/internal/irc"
	"github.com/yourusername/tmichat/internal/output"
	"github.com/yourusername/tmichat/internal/protocol"
)

const (
	defaultBufferSize = 1024

	breakerThreshold = 5
	breakerTimeout   = 30 * time.Second
)

// DefaultCommands are the commands published when none are configured
var DefaultCommands = []protocol.Command{
	protocol.Privmsg,
	protocol.UserNotice,
	protocol.ClearChat,
	protocol.ClearMsg,
	protocol.RoomState,
}

// Writer is the part of *kafka.Writer the publisher uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for topic that hashes keys to partitions
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}
}

// Publisher buffers inbound messages and writes them to Kafka from a single
// goroutine. When the buffer is full new messages are dropped and counted.
// After repeated write failures the breaker opens and events are discarded
// as failed without touching the broker until it recovers.
type Publisher struct {
	writer   Writer
	logger   output.Logger
	commands map[protocol.Command]struct{}
	events   chan Event
	breaker  *circuitbreaker.CircuitBreaker
	nowFunc  func() time.Time

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a publisher for the given commands. No commands means DefaultCommands.
func NewPublisher(writer Writer, logger output.Logger, commands ...protocol.Command) *Publisher {
	if logger == nil {
		logger = output.NopLogger{}
	}
	if len(commands) == 0 {
		commands = DefaultCommands
	}
	set := make(map[protocol.Command]struct{}, len(commands))
	for _, c := range commands {
		set[c] = struct{}{}
	}
	p := &Publisher{
		writer:   writer,
		logger:   logger,
		commands: set,
		events:   make(chan Event, defaultBufferSize),
		nowFunc:  time.Now,
	}
	p.breaker = circuitbreaker.New(circuitbreaker.Config{
		Threshold:     breakerThreshold,
		Timeout:       breakerTimeout,
		OnStateChange: p.onBreakerChange,
	})
	return p
}

func (p *Publisher) onBreakerChange(from, to circuitbreaker.State) {
	switch to {
	case circuitbreaker.StateOpen:
		p.logger.Warning("Kafka circuit opened, pausing writes for %v", breakerTimeout)
	case circuitbreaker.StateClosed:
		p.logger.Success("Kafka circuit closed, writes resumed")
	}
}

// Attach publishes every matching message the client receives
func (p *Publisher) Attach(client *irc.Client) {
	client.OnAnyMessage(p.Publish)
}

// Publish queues msg if its command is published. It never blocks.
func (p *Publisher) Publish(msg *protocol.Message) {
	if _, ok := p.commands[msg.Command]; !ok {
		return
	}
	select {
	case p.events <- NewEvent(msg, p.nowFunc()):
	default:
		if p.dropped.Add(1) == 1 {
			p.logger.Warning("Kafka buffer full, dropping inbound messages")
		}
	}
}

// Run writes queued events until ctx is done, then closes the writer
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.logger.Error("Kafka writer close failed: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			p.write(ctx, ev)
		}
	}
}

func (p *Publisher) write(ctx context.Context, ev Event) {
	value, err := ev.Marshal()
	if err != nil {
		p.logger.Error("Kafka marshal failed: %v", err)
		p.failed.Add(1)
		return
	}

	msg := kafkago.Message{
		Key:   []byte(ev.Key()),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "command", Value: []byte(ev.Command)},
		},
		Time: ev.ReceivedAt,
	}
	err = p.breaker.Call(func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, circuitbreaker.ErrOpen) {
			p.logger.Error("Kafka write failed: %v", err)
		}
		p.failed.Add(1)
		return
	}
	p.published.Add(1)
}

// Stats returns how many events were written, dropped for a full buffer, and failed
func (p *Publisher) Stats() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}

// BreakerState returns the state of the circuit guarding Kafka writes
func (p *Publisher) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}
