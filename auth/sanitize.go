package auth

import (
	"strings"
	"unicode"
)

// sanitizeToken trims surrounding whitespace and removes embedded
// newlines, tabs, and other control characters (interior spaces are
// kept, so "Bearer <token>" keeps its separator) that a malformed
// credential or a misbehaving token endpoint could otherwise smuggle
// into the Authorization header, which net/http would reject outright
// with "invalid header field value".
func sanitizeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.NewReplacer("\n", "", "\r", "", "\t", "").Replace(raw)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
}
