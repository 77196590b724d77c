// Package sink publishes inbound chat messages to Kafka.
package sink

import (
	"encoding/json"
	"time"

	"github.com/yourusername/tmichat/internal/protocol"
)

// Event is the JSON record written for one inbound message
type Event struct {
	Command    string            `json:"command"`
	Channel    string            `json:"channel,omitempty"`
	User       string            `json:"user,omitempty"`
	Text       string            `json:"text,omitempty"`
	Action     bool              `json:"action,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Raw        string            `json:"raw"`
	ReceivedAt time.Time         `json:"received_at"`
}

// NewEvent builds the record for msg received at t
func NewEvent(msg *protocol.Message, t time.Time) Event {
	ev := Event{
		Command:    msg.Verb(),
		Channel:    msg.Channel(),
		User:       msg.User,
		Text:       msg.Trailing(),
		Tags:       msg.Tags,
		Raw:        msg.String(),
		ReceivedAt: t.UTC(),
	}
	if text, ok := msg.ActionText(); ok {
		ev.Text = text
		ev.Action = true
	}
	return ev
}

// Key partitions records by channel so each channel keeps its order
func (e Event) Key() string {
	return e.Channel
}

// Marshal encodes the event as JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
