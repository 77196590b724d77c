package splitter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLength is the longest chat message body the server accepts, in characters
const DefaultMaxLength = 500

// Splitter breaks long message bodies into parts the server will accept
type Splitter struct {
	maxLength int // characters, not bytes
}

// New creates a splitter for maxLength characters. maxLength <= 0 uses DefaultMaxLength.
func New(maxLength int) *Splitter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Splitter{maxLength: maxLength}
}

// MaxLength returns the per-part character limit
func (s *Splitter) MaxLength() int {
	return s.maxLength
}

// Split returns message unchanged when it fits, otherwise parts of at most
// MaxLength characters cut at the last space before the limit. A word longer
// than the limit is cut mid-word on a rune boundary. Whitespace at the cut is dropped.
func (s *Splitter) Split(message string) []string {
	if utf8.RuneCountInString(message) <= s.maxLength {
		return []string{message}
	}

	var parts []string
	remaining := message
	for remaining != "" {
		if utf8.RuneCountInString(remaining) <= s.maxLength {
			parts = append(parts, remaining)
			break
		}

		cut := s.splitPoint(remaining)
		if part := strings.TrimRightFunc(remaining[:cut], unicode.IsSpace); part != "" {
			parts = append(parts, part)
		}
		remaining = strings.TrimLeftFunc(remaining[cut:], unicode.IsSpace)
	}
	return parts
}

// splitPoint returns the byte offset to cut message at. message is longer than maxLength.
func (s *Splitter) splitPoint(message string) int {
	// Byte offset just past the maxLength-th rune.
	limit := 0
	for i := 0; i < s.maxLength; i++ {
		_, size := utf8.DecodeRuneInString(message[limit:])
		limit += size
	}

	// Prefer the last space, including one sitting right at the limit.
	if i := strings.LastIndexFunc(message[:limit+1], unicode.IsSpace); i > 0 {
		return i
	}
	return limit
}
