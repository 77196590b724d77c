package irc

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/transport/transporttest"
)

const testInterval = 10 * time.Millisecond

// waitFor polls cond until it holds or a deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, interval time.Duration) (*ChannelManager, *transporttest.Transport) {
	t.Helper()

	tr := transporttest.New()
	cm := NewChannelManager(tr, nil, nil, interval)
	t.Cleanup(cm.Stop)
	return cm, tr
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestNormalizeChannel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"TestChannel", "testchannel"},
		{"#General", "general"},
		{"  #spaced  ", "spaced"},
		{"", ""},
		{"   ", ""},
		{"#", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeChannel(tt.input); got != tt.want {
				t.Errorf("NormalizeChannel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestChannelManager_JoinLifecycle(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannel("TestChannel")

	if got := cm.DesiredChannels(); !reflect.DeepEqual(got, []string{"testchannel"}) {
		t.Fatalf("DesiredChannels() = %v, want [testchannel]", got)
	}
	if !cm.IsPending("testchannel") {
		t.Fatal("channel should be pending before Start")
	}

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "join request", func() bool { return cm.IsRequested("testchannel") })

	if cm.IsPending("testchannel") {
		t.Error("channel should no longer be pending once requested")
	}
	if sent := tr.Sent(); len(sent) != 1 || sent[0] != "JOIN #testchannel" {
		t.Fatalf("sent = %v, want [JOIN #testchannel]", sent)
	}

	ch := cm.JoinCompleted("testchannel")
	if ch == nil {
		t.Fatal("JoinCompleted() returned nil")
	}

	got := cm.GetJoinedChannel("testchannel")
	if got == nil {
		t.Fatal("GetJoinedChannel() returned nil after completion")
	}
	if got.Name != "testchannel" {
		t.Errorf("Name = %q, want %q", got.Name, "testchannel")
	}
	if cm.IsRequested("testchannel") {
		t.Error("channel should no longer be requested once joined")
	}
	if joined := cm.JoinedChannels(); len(joined) != 1 || joined[0] != got {
		t.Errorf("JoinedChannels() = %v", joined)
	}
}

func TestChannelManager_LeaveBeforeConfirmation(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannel("x")
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("x") })

	cm.LeaveChannel("x")

	if cm.IsRequested("x") {
		t.Error("channel should not be requested after leave")
	}
	if cm.GetJoinedChannel("x") != nil {
		t.Error("channel should not be joined after leave")
	}

	if ch := cm.JoinCompleted("x"); ch != nil {
		t.Error("late JoinCompleted should be a no-op")
	}
	if cm.GetJoinedChannel("x") != nil {
		t.Error("late JoinCompleted should not join the channel")
	}
	if n := countPrefix(tr.Sent(), "PART"); n != 0 {
		t.Errorf("sent %d PART lines, want none", n)
	}
	if len(cm.DesiredChannels()) != 0 {
		t.Errorf("DesiredChannels() = %v, want empty", cm.DesiredChannels())
	}
}

func TestChannelManager_LeaveWhileQueued(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannel("x")
	cm.LeaveChannel("x")

	if cm.IsPending("x") {
		t.Error("channel should not be pending after leave")
	}

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(5 * testInterval)

	if sent := tr.Sent(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing", sent)
	}
	if cm.IsRequested("x") {
		t.Error("canceled join should not reach requested")
	}
}

func TestChannelManager_RejoinAfterLeave(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannel("x")
	cm.LeaveChannel("x")
	cm.JoinChannel("x")

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("x") })
	time.Sleep(5 * testInterval)

	if n := countPrefix(tr.Sent(), "JOIN #x"); n != 1 {
		t.Errorf("sent %d JOIN lines, want 1", n)
	}
	if cm.JoinCompleted("x") == nil {
		t.Error("rejoin should complete normally")
	}
}

func TestChannelManager_LeaveTwiceNeverJoined(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	for i := 0; i < 2; i++ {
		cm.LeaveChannel("ghost")

		if len(cm.DesiredChannels()) != 0 || len(cm.JoinedChannels()) != 0 {
			t.Fatalf("leave %d changed state", i+1)
		}
		if cm.IsPending("ghost") || cm.IsRequested("ghost") {
			t.Fatalf("leave %d left the channel in flight", i+1)
		}
	}
	if sent := tr.Sent(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing", sent)
	}
}

func TestChannelManager_LeaveJoinedSendsPart(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannel("#General")
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("general") })
	ch := cm.JoinCompleted("general")

	cm.LeaveJoinedChannel(ch)

	if cm.GetJoinedChannel("general") != nil {
		t.Error("channel should be gone after leave")
	}
	sent := tr.Sent()
	if sent[len(sent)-1] != "PART #general" {
		t.Errorf("last sent = %q, want %q", sent[len(sent)-1], "PART #general")
	}

	cm.LeaveJoinedChannel(nil)
}

func TestChannelManager_JoinIgnoresEmptyAndJoined(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	cm.JoinChannels([]string{"", "   ", "#"})
	if len(cm.DesiredChannels()) != 0 {
		t.Fatalf("DesiredChannels() = %v, want empty", cm.DesiredChannels())
	}

	cm.JoinChannel("a")
	cm.JoinChannel("A")
	cm.JoinChannel("#a")
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("a") })
	cm.JoinCompleted("a")

	cm.JoinChannel("a")
	time.Sleep(5 * testInterval)

	if n := countPrefix(tr.Sent(), "JOIN"); n != 1 {
		t.Errorf("sent %d JOIN lines, want 1", n)
	}
	if cm.IsPending("a") {
		t.Error("joining a joined channel should not queue it")
	}
}

func TestChannelManager_StartTwice(t *testing.T) {
	cm, _ := newTestManager(t, testInterval)

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	err := cm.Start(context.Background())
	if err == nil {
		t.Fatal("second Start() should fail")
	}
	if !errors.Is(err, ErrAlreadyStarted) || !errors.Is(err, errors.ErrPrecondition) {
		t.Errorf("error = %v, want ErrAlreadyStarted", err)
	}

	cm.Stop()
	if err := cm.Start(context.Background()); err != nil {
		t.Errorf("Start() after Stop error = %v", err)
	}
}

func TestChannelManager_StopKeepsDesired(t *testing.T) {
	cm, tr := newTestManager(t, testInterval)

	// Stop before any Start is safe
	cm.Stop()

	cm.JoinChannels([]string{"a", "b"})
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "both joins", func() bool { return cm.IsRequested("a") && cm.IsRequested("b") })
	cm.JoinCompleted("a")

	cm.Stop()

	if len(cm.JoinedChannels()) != 0 {
		t.Error("Stop should clear joined channels")
	}
	if cm.IsRequested("b") {
		t.Error("Stop should clear requested channels")
	}
	if got := cm.DesiredChannels(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("DesiredChannels() = %v, want [a b]", got)
	}

	tr.Reset()
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	waitFor(t, "rejoins", func() bool { return cm.IsRequested("a") && cm.IsRequested("b") })

	if n := countPrefix(tr.Sent(), "JOIN"); n != 2 {
		t.Errorf("sent %d JOIN lines after restart, want 2", n)
	}
}

func TestChannelManager_Pacing(t *testing.T) {
	cm, tr := newTestManager(t, 200*time.Millisecond)

	cm.JoinChannels([]string{"a", "b", "c"})
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "first join", func() bool { return len(tr.Sent()) >= 1 })
	if n := len(tr.Sent()); n != 1 {
		t.Errorf("sent %d JOIN lines immediately, want 1", n)
	}

	waitFor(t, "second join", func() bool { return len(tr.Sent()) >= 2 })
	if got := tr.Sent(); got[0] != "JOIN #a" || got[1] != "JOIN #b" {
		t.Errorf("sent = %v, want JOINs in queue order", got)
	}
}

func TestChannelManager_JoinCanceled(t *testing.T) {
	cm, _ := newTestManager(t, testInterval)

	var canceled []string
	cm.OnJoinCanceled(func(n string) { canceled = append(canceled, n) })

	cm.JoinChannel("banned")
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("banned") })

	cm.JoinCanceled("banned")
	if cm.IsRequested("banned") {
		t.Error("JoinCanceled should clear requested")
	}
	if cm.JoinCompleted("banned") != nil {
		t.Error("JoinCompleted after cancel should be a no-op")
	}
	cm.JoinCanceled("banned")
	if len(canceled) != 1 || canceled[0] != "banned" {
		t.Errorf("OnJoinCanceled calls = %v, want one for banned", canceled)
	}

	// Canceling never touches joined channels
	cm.JoinChannel("ok")
	waitFor(t, "join request", func() bool { return cm.IsRequested("ok") })
	cm.JoinCompleted("ok")
	cm.JoinCanceled("ok")
	if cm.GetJoinedChannel("ok") == nil {
		t.Error("JoinCanceled removed a joined channel")
	}
}

func TestChannelManager_JoinSendFailures(t *testing.T) {
	tests := []struct {
		name    string
		fail    func(tr *transporttest.Transport)
		restore func(tr *transporttest.Transport)
	}{
		{
			name:    "transport panics",
			fail:    func(tr *transporttest.Transport) { tr.PanicOnSend("boom") },
			restore: func(tr *transporttest.Transport) { tr.PanicOnSend(nil) },
		},
		{
			name:    "transport refuses",
			fail:    func(tr *transporttest.Transport) { tr.SetSendResult(false) },
			restore: func(tr *transporttest.Transport) { tr.SetSendResult(true) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, tr := newTestManager(t, testInterval)

			var mu sync.Mutex
			var failed []string
			var failErr error
			sent := 0
			cm.OnJoinError(func(n string, err error) {
				mu.Lock()
				defer mu.Unlock()
				failed = append(failed, n)
				failErr = err
			})
			cm.OnJoinSent(func(string) {
				mu.Lock()
				defer mu.Unlock()
				sent++
			})

			tt.fail(tr)
			cm.JoinChannel("a")
			if err := cm.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			waitFor(t, "join error", func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(failed) == 1
			})

			mu.Lock()
			if failed[0] != "a" || !errors.Is(failErr, errors.ErrTransport) {
				t.Errorf("OnJoinError got (%v, %v), want (a, Transport error)", failed, failErr)
			}
			if sent != 0 {
				t.Errorf("OnJoinSent calls = %d after a failed send, want 0", sent)
			}
			mu.Unlock()
			if !cm.IsRequested("a") {
				t.Error("a failed JOIN should leave the channel requested")
			}

			// The worker survived and keeps joining.
			tt.restore(tr)
			cm.JoinChannel("b")
			waitFor(t, "join after failure", func() bool { return countPrefix(tr.Sent(), "JOIN #b") == 1 })
		})
	}
}

func TestChannelManager_PartCompleted(t *testing.T) {
	cm, _ := newTestManager(t, testInterval)

	cm.JoinChannel("a")
	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "join request", func() bool { return cm.IsRequested("a") })
	cm.JoinCompleted("a")

	cm.PartCompleted("#A")
	if cm.GetJoinedChannel("a") != nil {
		t.Error("PartCompleted should forget the handle")
	}
	if got := cm.DesiredChannels(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("DesiredChannels() = %v, want [a]", got)
	}
}

// memoryStore is an in-memory ChannelStore
type memoryStore struct {
	mu       sync.Mutex
	channels map[string]bool
}

func newMemoryStore(names ...string) *memoryStore {
	s := &memoryStore{channels: make(map[string]bool)}
	for _, n := range names {
		s.channels[n] = true
	}
	return s
}

func (s *memoryStore) SaveChannel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = true
	return nil
}

func (s *memoryStore) DeleteChannel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, name)
	return nil
}

func (s *memoryStore) ListChannels() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for n := range s.channels {
		out = append(out, n)
	}
	return out, nil
}

func TestChannelManager_Store(t *testing.T) {
	store := newMemoryStore("saved")
	tr := transporttest.New()
	cm := NewChannelManager(tr, nil, store, testInterval)
	t.Cleanup(cm.Stop)

	if err := cm.LoadDesired(); err != nil {
		t.Fatalf("LoadDesired() error = %v", err)
	}
	if got := cm.DesiredChannels(); !reflect.DeepEqual(got, []string{"saved"}) {
		t.Fatalf("DesiredChannels() = %v, want [saved]", got)
	}
	if cm.IsPending("saved") {
		t.Error("loaded channels should wait for Start")
	}

	cm.JoinChannel("new")
	cm.LeaveChannel("saved")

	names, _ := store.ListChannels()
	if !reflect.DeepEqual(names, []string{"new"}) {
		t.Errorf("stored channels = %v, want [new]", names)
	}
}
