package irc

import (
	"reflect"
	"strings"
	"testing"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/protocol"
	"github.com/yourusername/tmichat/internal/transport/transporttest"
)

func mustParse(t *testing.T, line string) *protocol.Message {
	t.Helper()
	msg, err := protocol.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", line, err)
	}
	return msg
}

func TestAuthenticator_Login(t *testing.T) {
	tests := []struct {
		name     string
		nick     string
		token    string
		wantPass string
		wantAnon bool
	}{
		{"token with prefix", "Bot", "oauth:abc", "PASS oauth:abc", false},
		{"bare token", "bot", "abc", "PASS oauth:abc", false},
		{"no token", "bot", "", "PASS " + anonymousPass, true},
		{"no nick", "", "abc", "PASS " + anonymousPass, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := transporttest.New()
			a := NewAuthenticator(tt.nick, tt.token, []string{"twitch.tv/tags"}, nil)

			if err := a.Login(tr); err != nil {
				t.Fatalf("Login() error = %v", err)
			}

			sent := tr.Sent()
			if len(sent) != 3 {
				t.Fatalf("sent %d lines, want 3", len(sent))
			}
			if sent[0] != "CAP REQ :twitch.tv/tags" {
				t.Errorf("sent[0] = %q", sent[0])
			}
			if sent[1] != tt.wantPass {
				t.Errorf("sent[1] = %q, want %q", sent[1], tt.wantPass)
			}
			if sent[2] != "NICK "+a.Nick() {
				t.Errorf("sent[2] = %q, want NICK %s", sent[2], a.Nick())
			}
			if a.Anonymous() != tt.wantAnon {
				t.Errorf("Anonymous() = %v, want %v", a.Anonymous(), tt.wantAnon)
			}
			if tt.wantAnon && !strings.HasPrefix(a.Nick(), "justinfan") {
				t.Errorf("Nick() = %q, want justinfan nick", a.Nick())
			}
		})
	}
}

func TestAuthenticator_LoginSendFails(t *testing.T) {
	tr := transporttest.New()
	tr.SetSendResult(false)
	a := NewAuthenticator("bot", "abc", nil, nil)

	err := a.Login(tr)
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("Login() error = %v, want a Transport error", err)
	}
}

func TestAuthenticator_HandleMessage(t *testing.T) {
	a := NewAuthenticator("bot", "abc", nil, nil)

	if err := a.HandleMessage(mustParse(t, ":tmi.twitch.tv CAP * ACK :twitch.tv/tags twitch.tv/commands")); err != nil {
		t.Fatalf("HandleMessage(CAP ACK) error = %v", err)
	}
	if got := a.Acknowledged(); !reflect.DeepEqual(got, []string{"twitch.tv/tags", "twitch.tv/commands"}) {
		t.Errorf("Acknowledged() = %v", got)
	}

	if a.Registered() {
		t.Fatal("Registered() = true before welcome")
	}
	_ = a.HandleMessage(mustParse(t, ":tmi.twitch.tv 001 bot :Welcome, GLHF!"))
	if !a.Registered() {
		t.Error("Registered() = false after 001")
	}

	err := a.HandleMessage(mustParse(t, ":tmi.twitch.tv NOTICE * :Improperly formatted auth"))
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("HandleMessage(login NOTICE) error = %v, want a Transport error", err)
	}

	// Channel notices with similar text are not login failures
	if err := a.HandleMessage(mustParse(t, ":tmi.twitch.tv NOTICE #general :Login authentication failed")); err != nil {
		t.Errorf("channel NOTICE returned error %v", err)
	}
}

func TestConnectionState(t *testing.T) {
	var s ConnectionState

	if s.HasConnected() || s.Connected() {
		t.Fatal("zero state should be disconnected")
	}
	if !s.MarkConnected() {
		t.Error("first MarkConnected() should report first")
	}
	s.MarkDisconnected()
	if s.Connected() {
		t.Error("Connected() = true after MarkDisconnected")
	}
	if s.MarkConnected() {
		t.Error("second MarkConnected() should not report first")
	}
	s.Reset()
	if s.HasConnected() {
		t.Error("HasConnected() = true after Reset")
	}
}

func TestJoinedChannel_UserState(t *testing.T) {
	ch := newJoinedChannel("general")

	ch.AddPendingMessage("a")
	ch.AddPendingMessage("b")
	if ch.HasUserState() {
		t.Fatal("HasUserState() = true before MarkUserState")
	}

	tags := map[string]string{"mod": "1"}
	drained := ch.MarkUserState(tags)
	if !reflect.DeepEqual(drained, []string{"a", "b"}) {
		t.Errorf("MarkUserState() = %v, want [a b]", drained)
	}
	tags["mod"] = "0"
	if ch.UserState()["mod"] != "1" {
		t.Error("user state should be copied")
	}
	if len(ch.PendingBeforeState()) != 0 {
		t.Error("pending messages should be drained")
	}
}
