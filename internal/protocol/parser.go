package protocol

import (
	"strings"

	"github.com/yourusername/tmichat/internal/errors"
)

// minLineLength is the shortest input Parse will attempt.
const minLineLength = 3

// ErrFormat matches, with errors.Is, the error Parse returns for input too short to parse.
var ErrFormat = errors.ErrFormat

// Parse parses one protocol line. A trailing CR-LF is ignored.
//
// It returns a Format error for empty input or input shorter than three
// characters. Every other input yields a Message; commands outside the known
// set come back as Unknown with RawCommand preserved.
func Parse(raw string) (*Message, error) {
	line := strings.TrimRight(raw, "\r\n")
	if len(line) < minLineLength {
		return nil, errors.NewFormatError(raw)
	}

	msg := &Message{Tags: map[string]string{}}
	rest := line

	if rest[0] == '@' {
		var tagText string
		tagText, rest = nextToken(rest[1:])
		msg.Tags = parseTags(tagText)
	}

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, ":") {
		var prefix string
		prefix, rest = nextToken(rest[1:])
		msg.Hostmask = prefix
		msg.User, _, _ = strings.Cut(prefix, "!")
	}

	rest = strings.TrimLeft(rest, " ")
	msg.RawCommand, rest = nextToken(rest)
	msg.Command = ParseCommand(msg.RawCommand)
	msg.Params = parseParams(msg.Command, rest)

	return msg, nil
}

// nextToken splits s at the first space.
func nextToken(s string) (token, rest string) {
	token, rest, _ = strings.Cut(s, " ")
	return token, rest
}

// parseParams splits what follows the command at the first " :". The part
// before it is kept as one normalized middle parameter.
func parseParams(cmd Command, rest string) []string {
	if rest == "" {
		return nil
	}

	if strings.HasPrefix(rest, ":") {
		return []string{rest[1:]}
	}

	middle, trailing, hasTrailing := strings.Cut(rest, " :")
	middle = strings.Join(strings.Fields(middle), " ")

	if cmd == RplNamReply {
		middle = namesChannel(middle)
	}

	var params []string
	if middle != "" {
		params = append(params, middle)
	}
	if hasTrailing {
		params = append(params, trailing)
	}
	return params
}

// namesChannel reduces "nick = #channel" to "#channel".
func namesChannel(middle string) string {
	if i := strings.IndexByte(middle, '#'); i >= 0 {
		return middle[i:]
	}
	return middle
}
