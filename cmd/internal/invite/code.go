package invite

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
)

const (
	// CodeLength is the number of characters in an invite code.
	CodeLength = 8

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codeRE = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// ValidCode reports whether code has the invite code shape.
func ValidCode(code string) bool {
	return codeRE.MatchString(code)
}

// CodeGenerator produces invite codes. Codes need to be distinct with high
// probability, not unguessable.
type CodeGenerator interface {
	NewCode() (string, error)
}

// RandomCodes draws codes uniformly from [A-Z0-9] using Reader
// (crypto/rand when nil).
type RandomCodes struct {
	Reader io.Reader
}

// NewCode returns an 8-character code.
func (g RandomCodes) NewCode() (string, error) {
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}

	// 252 is the largest multiple of 36 below 256; bytes above it are
	// discarded so every symbol stays equally likely.
	const limit = 252

	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read code entropy: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// CodeFunc adapts a function to CodeGenerator.
type CodeFunc func() (string, error)

// NewCode calls f.
func (f CodeFunc) NewCode() (string, error) { return f() }
