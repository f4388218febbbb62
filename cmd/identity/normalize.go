package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxDisplayNameRunes = 64

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims surrounding whitespace. Case is preserved because the
// recipient address is shown back to the inviter verbatim.
func NormalizeEmail(s string) string {
	return strings.TrimSpace(s)
}

// ValidEmail reports whether s looks like a deliverable address.
// It is a shape check only; nothing is resolved.
func ValidEmail(s string) bool {
	return emailRE.MatchString(s)
}

// NormalizeDisplayName trims, NFC-normalizes and collapses internal whitespace.
// Control characters are dropped. The result is truncated to 64 runes.
func NormalizeDisplayName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			n++
		}
		space = false
		if n >= maxDisplayNameRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
