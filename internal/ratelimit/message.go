package ratelimit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/tmichat/internal/protocol"
)

// NonceTag is the tag carrying an outbound message's nonce. The server echoes
// it back, which lets a caller match a send to its own message.
const NonceTag = "client-nonce"

// OutboundMessage is a chat message waiting to be sent
type OutboundMessage struct {
	Channel string // without the leading '#'
	Sender  string
	Body    string
	Nonce   string
}

// NewOutboundMessage creates a message with a fresh nonce
func NewOutboundMessage(channel, sender, body string) *OutboundMessage {
	return &OutboundMessage{
		Channel: strings.TrimPrefix(channel, "#"),
		Sender:  sender,
		Body:    body,
		Nonce:   uuid.NewString(),
	}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Line renders the message as a PRIVMSG line without CR-LF.
// Line breaks in the body are replaced by spaces so one message is one line.
func (m *OutboundMessage) Line() string {
	msg := protocol.Message{
		Command: protocol.Privmsg,
		Params:  []string{"#" + strings.TrimPrefix(m.Channel, "#"), lineBreaks.Replace(m.Body)},
	}
	if m.Nonce != "" {
		msg.Tags = map[string]string{NonceTag: m.Nonce}
	}
	return msg.String()
}

// ThrottleReason explains why a send was dropped by the limiter
const ThrottleReason = "too many messages sent within the throttling period"

// ThrottledEvent reports a message dropped because the window was exhausted.
// The message is not retried; this event is the only record of it.
type ThrottledEvent struct {
	Reason          string
	ItemNotSent     *OutboundMessage
	Period          time.Duration
	AllowedInPeriod int
}
