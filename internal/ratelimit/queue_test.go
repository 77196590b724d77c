package ratelimit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/transport/transporttest"
)

func newTestQueue(t *testing.T, cfg Config) (*MessageQueue, *transporttest.Transport, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	cfg = cfg.withDefaults()
	tr := transporttest.New()
	limiter := newFixedWindowWithClock(cfg.SendsAllowedInPeriod, cfg.ThrottlingPeriod, clock.Now)
	mq := NewMessageQueue(cfg, limiter, tr, nil)
	mq.nowFunc = clock.Now
	return mq, tr, clock
}

func TestMessageQueue_EnqueueRejects(t *testing.T) {
	t.Run("capacity reached", func(t *testing.T) {
		mq, _, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20, QueueCapacity: 1})

		var rejected []error
		mq.OnRejected(func(_ *OutboundMessage, err error) { rejected = append(rejected, err) })

		if !mq.Enqueue(NewOutboundMessage("general", "bot", "first")) {
			t.Fatal("first Enqueue should succeed")
		}
		if mq.Enqueue(NewOutboundMessage("general", "bot", "second")) {
			t.Error("second Enqueue should be rejected at capacity 1")
		}
		if mq.Size() != 1 {
			t.Errorf("Size() = %d, want 1", mq.Size())
		}
		if len(rejected) != 1 || !errors.Is(rejected[0], errors.ErrCapacity) {
			t.Errorf("OnRejected errors = %v, want one Capacity error", rejected)
		}
	})

	t.Run("not connected", func(t *testing.T) {
		mq, tr, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20, QueueCapacity: 100})
		tr.SetConnected(false)

		if mq.Enqueue(NewOutboundMessage("general", "bot", "hello")) {
			t.Error("Enqueue should be rejected while disconnected")
		}
		if mq.Size() != 0 {
			t.Errorf("Size() = %d, want 0", mq.Size())
		}
	})

	t.Run("nil message", func(t *testing.T) {
		mq, _, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20})

		if mq.Enqueue(nil) {
			t.Error("Enqueue(nil) should be rejected")
		}
	})
}

func TestNewMessageQueue_AppliesDefaults(t *testing.T) {
	tr := transporttest.New()
	mq := NewMessageQueue(Config{SendsAllowedInPeriod: 5}, NewFixedWindow(5, time.Minute), tr, nil)

	def := DefaultConfig()
	if mq.capacity != def.QueueCapacity || mq.interSendDelay != def.InterSendDelay || mq.cacheItemTimeout != def.CacheItemTimeout {
		t.Errorf("capacity, delay, timeout = %d, %v, %v, want defaults", mq.capacity, mq.interSendDelay, mq.cacheItemTimeout)
	}
	if !mq.Enqueue(NewOutboundMessage("general", "bot", "hello")) {
		t.Fatal("Enqueue should succeed with the default capacity")
	}

	// The pump must not build a ticker from a zero delay.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mq.Start(ctx)
	waitForSent := time.Now().Add(2 * time.Second)
	for len(tr.Sent()) == 0 && time.Now().Before(waitForSent) {
		time.Sleep(5 * time.Millisecond)
	}
	mq.Stop()
	if len(tr.Sent()) != 1 {
		t.Errorf("sent = %v, want the queued message", tr.Sent())
	}
}

func TestMessageQueue_SendsInOrder(t *testing.T) {
	mq, tr, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20})

	bodies := []string{"one", "two", "three"}
	for _, b := range bodies {
		if !mq.Enqueue(&OutboundMessage{Channel: "general", Body: b}) {
			t.Fatalf("Enqueue(%q) failed", b)
		}
	}

	for range bodies {
		mq.processNextMessage()
	}
	// Empty queue is a no-op
	mq.processNextMessage()

	sent := tr.Sent()
	if len(sent) != len(bodies) {
		t.Fatalf("sent %d lines, want %d", len(sent), len(bodies))
	}
	for i, b := range bodies {
		want := "PRIVMSG #general :" + b
		if sent[i] != want {
			t.Errorf("sent[%d] = %q, want %q", i, sent[i], want)
		}
	}
}

func TestMessageQueue_DropsExpired(t *testing.T) {
	mq, tr, clock := newTestQueue(t, Config{SendsAllowedInPeriod: 20, CacheItemTimeout: time.Minute})

	var expired []*OutboundMessage
	mq.OnExpired(func(m *OutboundMessage) { expired = append(expired, m) })

	stale := NewOutboundMessage("general", "bot", "stale")
	mq.Enqueue(stale)
	clock.Advance(time.Minute + time.Second)
	fresh := NewOutboundMessage("general", "bot", "fresh")
	mq.Enqueue(fresh)

	mq.processNextMessage()
	if len(tr.Sent()) != 0 {
		t.Fatalf("expired message was sent: %v", tr.Sent())
	}
	if len(expired) != 1 || expired[0] != stale {
		t.Fatalf("expired = %v, want the stale message", expired)
	}

	mq.processNextMessage()
	sent := tr.Sent()
	if len(sent) != 1 || !strings.HasSuffix(sent[0], ":fresh") {
		t.Errorf("sent = %v, want only the fresh message", sent)
	}
}

func TestMessageQueue_ThrottledEvent(t *testing.T) {
	mq, tr, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 1, ThrottlingPeriod: 30 * time.Second})

	var events []ThrottledEvent
	mq.OnThrottled(func(ev ThrottledEvent) { events = append(events, ev) })

	first := NewOutboundMessage("general", "bot", "first")
	second := NewOutboundMessage("general", "bot", "second")
	mq.Enqueue(first)
	mq.Enqueue(second)

	mq.processNextMessage()
	mq.processNextMessage()

	if len(tr.Sent()) != 1 {
		t.Fatalf("sent %d lines, want 1", len(tr.Sent()))
	}
	if len(events) != 1 {
		t.Fatalf("got %d throttled events, want 1", len(events))
	}

	ev := events[0]
	if ev.ItemNotSent != second {
		t.Error("event should carry the throttled message")
	}
	if ev.Period != 30*time.Second {
		t.Errorf("Period = %v, want 30s", ev.Period)
	}
	if ev.AllowedInPeriod != 1 {
		t.Errorf("AllowedInPeriod = %d, want 1", ev.AllowedInPeriod)
	}
	if ev.Reason == "" {
		t.Error("Reason should not be empty")
	}
	if mq.Size() != 0 {
		t.Errorf("throttled message should not be requeued, Size() = %d", mq.Size())
	}
}

func TestMessageQueue_SendFailures(t *testing.T) {
	t.Run("send returns false", func(t *testing.T) {
		mq, tr, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20})
		tr.SetSendResult(false)

		var failed []error
		mq.OnSendError(func(_ *OutboundMessage, err error) { failed = append(failed, err) })

		mq.Enqueue(NewOutboundMessage("general", "bot", "hello"))
		mq.processNextMessage()

		if len(failed) != 1 {
			t.Fatalf("got %d send errors, want 1", len(failed))
		}
		if !errors.Is(failed[0], errors.ErrTransport) {
			t.Errorf("error = %v, want a Transport error", failed[0])
		}
	})

	t.Run("send panics", func(t *testing.T) {
		mq, tr, _ := newTestQueue(t, Config{SendsAllowedInPeriod: 20})
		tr.PanicOnSend("socket exploded")

		var failed int
		mq.OnSendError(func(*OutboundMessage, error) { failed++ })

		mq.Enqueue(NewOutboundMessage("general", "bot", "one"))
		mq.Enqueue(NewOutboundMessage("general", "bot", "two"))
		mq.processNextMessage()

		tr.PanicOnSend(nil)
		mq.processNextMessage()

		if failed != 1 {
			t.Errorf("got %d send errors, want 1", failed)
		}
		if len(tr.Sent()) != 1 {
			t.Errorf("sent %d lines after recovering, want 1", len(tr.Sent()))
		}
	})
}

func TestMessageQueue_StartStop(t *testing.T) {
	tr := transporttest.New()
	mq := New(Config{SendsAllowedInPeriod: 20, InterSendDelay: 5 * time.Millisecond}, tr, nil)

	// Stop before Start is safe
	mq.Stop()

	var mu sync.Mutex
	sent := 0
	mq.OnSent(func(*OutboundMessage) {
		mu.Lock()
		sent++
		mu.Unlock()
	})

	ctx := context.Background()
	mq.Start(ctx)
	mq.Start(ctx) // replaces the first pump
	if !mq.Running() {
		t.Fatal("Running() = false after Start")
	}

	for i := 0; i < 3; i++ {
		mq.Enqueue(NewOutboundMessage("general", "bot", "hello"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := sent
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mq.Stop()
	mq.Stop()
	if mq.Running() {
		t.Error("Running() = true after Stop")
	}

	if got := len(tr.Sent()); got != 3 {
		t.Errorf("sent %d lines, want 3", got)
	}
}

func TestOutboundMessage_Line(t *testing.T) {
	tests := []struct {
		name string
		msg  OutboundMessage
		want string
	}{
		{
			name: "with nonce",
			msg:  OutboundMessage{Channel: "general", Body: "hello world", Nonce: "abc123"},
			want: "@client-nonce=abc123 PRIVMSG #general :hello world",
		},
		{
			name: "channel with hash",
			msg:  OutboundMessage{Channel: "#general", Body: "hi"},
			want: "PRIVMSG #general :hi",
		},
		{
			name: "line breaks flattened",
			msg:  OutboundMessage{Channel: "general", Body: "a\r\nb\nc"},
			want: "PRIVMSG #general :a b c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Line(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewOutboundMessage_Nonce(t *testing.T) {
	a := NewOutboundMessage("#general", "bot", "x")
	b := NewOutboundMessage("general", "bot", "x")

	if a.Nonce == "" || a.Nonce == b.Nonce {
		t.Errorf("nonces should be unique and non-empty: %q %q", a.Nonce, b.Nonce)
	}
	if a.Channel != "general" {
		t.Errorf("Channel = %q, want %q", a.Channel, "general")
	}
}
