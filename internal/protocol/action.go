package protocol

import "strings"

const (
	ctcpDelim    = "\x01"
	actionPrefix = ctcpDelim + "ACTION "
)

// ActionText reports whether a PRIVMSG carries a /me action, formatted as
// \x01ACTION text\x01, and returns the text with the framing removed.
func (m *Message) ActionText() (string, bool) {
	if m.Command != Privmsg {
		return "", false
	}
	body := m.Trailing()
	if !strings.HasPrefix(body, actionPrefix) || !strings.HasSuffix(body, ctcpDelim) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(body, actionPrefix), ctcpDelim), true
}

// FormatAction wraps text as a /me action body for PRIVMSG.
func FormatAction(text string) string {
	return actionPrefix + text + ctcpDelim
}
