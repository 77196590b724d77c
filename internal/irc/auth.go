package irc

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
	"github.com/yourusername/tmichat/internal/protocol"
)

// DefaultCapabilities are requested on every login
var DefaultCapabilities = []string{"twitch.tv/tags", "twitch.tv/commands", "twitch.tv/membership"}

// anonymousPass is accepted by the server for read-only justinfan logins
const anonymousPass = "SCHMOOPIIE"

// Authenticator performs the token login handshake and watches its outcome
type Authenticator struct {
	logger       output.Logger
	nick         string
	token        string
	capabilities []string

	mu         sync.Mutex
	registered bool
	acked      []string
}

// NewAuthenticator creates an authenticator. An empty token logs in
// anonymously with a generated justinfan nick, which can read but not send.
func NewAuthenticator(nick, token string, capabilities []string, logger output.Logger) *Authenticator {
	if logger == nil {
		logger = output.NopLogger{}
	}
	if len(capabilities) == 0 {
		capabilities = DefaultCapabilities
	}

	nick = strings.ToLower(strings.TrimSpace(nick))
	token = strings.TrimPrefix(strings.TrimSpace(token), "oauth:")
	if token == "" || nick == "" {
		nick = fmt.Sprintf("justinfan%d", 10000+rand.Intn(90000))
		token = ""
	}

	return &Authenticator{
		logger:       logger,
		nick:         nick,
		token:        token,
		capabilities: capabilities,
	}
}

// Nick returns the nick used to log in
func (a *Authenticator) Nick() string {
	return a.nick
}

// Anonymous reports whether the login has no token
func (a *Authenticator) Anonymous() bool {
	return a.token == ""
}

// Login sends CAP REQ, PASS and NICK directly on t
func (a *Authenticator) Login(t Transport) error {
	a.mu.Lock()
	a.registered = false
	a.acked = nil
	a.mu.Unlock()

	pass := anonymousPass
	if a.token != "" {
		pass = "oauth:" + a.token
	}

	lines := []string{
		"CAP REQ :" + strings.Join(a.capabilities, " "),
		"PASS " + pass,
		"NICK " + a.nick,
	}
	for _, line := range lines {
		if !t.Send(line) {
			return errors.NewTransportError("login", fmt.Errorf("could not send %s", strings.Fields(line)[0]))
		}
	}

	if a.Anonymous() {
		a.logger.Info("Logging in anonymously as %s", a.nick)
	} else {
		a.logger.Info("Logging in as %s", a.nick)
	}
	return nil
}

// HandleMessage inspects login related replies. It returns an error when the
// server rejected the credentials.
func (a *Authenticator) HandleMessage(msg *protocol.Message) error {
	switch msg.Command {
	case protocol.Cap:
		if len(msg.Params) == 0 {
			return nil
		}
		fields := strings.Fields(msg.Params[0])
		if len(fields) < 2 {
			return nil
		}
		caps := strings.Fields(msg.Trailing())
		switch fields[len(fields)-1] {
		case "ACK":
			a.mu.Lock()
			a.acked = append(a.acked, caps...)
			a.mu.Unlock()
			a.logger.Info("Capabilities acknowledged: %s", strings.Join(caps, ", "))
		case "NAK":
			a.logger.Warning("Capabilities refused: %s", strings.Join(caps, ", "))
		}

	case protocol.RplWelcome, protocol.GlobalUserState:
		a.mu.Lock()
		first := !a.registered
		a.registered = true
		a.mu.Unlock()
		if first {
			a.logger.Success("Logged in as %s", a.nick)
		}

	case protocol.Notice:
		text := msg.Trailing()
		if msg.Channel() == "*" || msg.Channel() == "" {
			if strings.Contains(text, "Login authentication failed") ||
				strings.Contains(text, "Improperly formatted auth") {
				return errors.NewTransportError("login", errors.New(text))
			}
		}
	}
	return nil
}

// Registered reports whether the server accepted the login
func (a *Authenticator) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

// Acknowledged returns the capabilities the server granted
func (a *Authenticator) Acknowledged() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.acked))
	copy(out, a.acked)
	return out
}
