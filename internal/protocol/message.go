// Package protocol parses and renders lines of the chat service's IRCv3 dialect.
//
// A line has the shape
//
//	[@tag1=val1;tag2=val2 ][:prefix ]COMMAND[ middle][ :trailing]
//
// Parse turns one line into a Message; Message.String turns it back.
package protocol

import (
	"sort"
	"strings"
	"unicode"
)

// Message is one parsed protocol line. Treat it as read-only once returned by Parse.
type Message struct {
	// Tags holds IRCv3 tags with escapes already decoded.
	// A tag sent without '=' has the value "1".
	Tags map[string]string

	// User is the prefix up to the first '!', or the whole prefix if it has none.
	User string

	// Hostmask is the full prefix without the leading ':'.
	Hostmask string

	Command Command

	// RawCommand is the verb exactly as received. It is what String writes
	// back for Unknown commands.
	RawCommand string

	// Params holds at most the middle parameter and the trailing text.
	// Params[0] is the middle parameter (e.g. "#channel"); when there are two or
	// more entries the last one is the trailing text.
	Params []string
}

// Channel returns the first parameter with a leading '#' removed.
func (m *Message) Channel() string {
	if len(m.Params) == 0 {
		return ""
	}
	return strings.TrimPrefix(m.Params[0], "#")
}

// Trailing returns the trailing text, or "" when the line had none.
func (m *Message) Trailing() string {
	if len(m.Params) < 2 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Payload returns the last parameter whatever its position. PING and PONG
// carry their token this way.
func (m *Message) Payload() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Tag returns the value of a tag and whether it was present.
func (m *Message) Tag(key string) (string, bool) {
	v, ok := m.Tags[key]
	return v, ok
}

// Verb returns the command as it should be written on the wire.
func (m *Message) Verb() string {
	if m.Command == Unknown {
		return m.RawCommand
	}
	return m.Command.String()
}

// String reconstructs the wire form of the message, without CR-LF.
// Tags are written in sorted key order.
func (m *Message) String() string {
	var b strings.Builder

	if len(m.Tags) > 0 {
		keys := make([]string, 0, len(m.Tags))
		for k := range m.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('@')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(EscapeTagValue(m.Tags[k]))
		}
		b.WriteByte(' ')
	}

	if m.Hostmask != "" {
		b.WriteByte(':')
		b.WriteString(m.Hostmask)
		b.WriteByte(' ')
	}

	b.WriteString(m.Verb())

	switch len(m.Params) {
	case 0:
	case 1:
		p := m.Params[0]
		// Parse normalizes any whitespace in a middle parameter, so only a
		// trailing parameter keeps it intact.
		if p == "" || strings.ContainsFunc(p, unicode.IsSpace) || p[0] == ':' {
			b.WriteString(" :")
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	default:
		for _, p := range m.Params[:len(m.Params)-1] {
			b.WriteByte(' ')
			b.WriteString(p)
		}
		b.WriteString(" :")
		b.WriteString(m.Params[len(m.Params)-1])
	}

	return b.String()
}
