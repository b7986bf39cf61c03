package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode percent-encodes s per the LMS CLI convention (spec.md §9): a
// near-standard URL alphabet where unreserved characters, space, and
// parentheses pass through literally and every other byte is escaped as
// %XX, including '%' itself (-> %25). This deliberately does not reuse
// net/url.QueryEscape, whose space->'+' and paren-escaping behaviour LMS
// does not expect; the exact byte-for-byte encoding matters because LMS
// parses it on the other end.
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLMSLiteral(c) {
			b.WriteByte(c)
			continue
		}

		fmt.Fprintf(&b, "%%%02X", c)
	}

	return b.String()
}

func isLMSLiteral(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	case c == ' ' || c == '(' || c == ')':
		return true
	default:
		return false
	}
}

// Decode reverses Encode, tolerating any %XX escape (not just the ones
// Encode itself produces) since LMS replies may escape bytes Encode
// would have left literal.
func Decode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}

		if i+2 >= len(s) {
			return "", fmt.Errorf("cli: truncated percent-escape in %q", s)
		}

		v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("cli: invalid percent-escape %q: %w", s[i:i+3], err)
		}

		b.WriteByte(byte(v))
		i += 2
	}

	return b.String(), nil
}
