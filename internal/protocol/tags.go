package protocol

import "strings"

// flagTagValue is what a tag sent without '=' decodes to.
const flagTagValue = "1"

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\:`,
	" ", `\s`,
	"\r", `\r`,
	"\n", `\n`,
)

// EscapeTagValue encodes v for use as an IRCv3 tag value.
func EscapeTagValue(v string) string {
	return tagEscaper.Replace(v)
}

// UnescapeTagValue decodes an IRCv3 tag value. Unknown escapes drop the
// backslash and a lone trailing backslash is removed.
func UnescapeTagValue(v string) string {
	if strings.IndexByte(v, '\\') < 0 {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(v) {
			break
		}
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// parseTags decodes the text between '@' and the first space.
func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		if !found {
			tags[key] = flagTagValue
			continue
		}
		tags[key] = UnescapeTagValue(value)
	}
	return tags
}
