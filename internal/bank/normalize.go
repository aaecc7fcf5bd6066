package bank

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize turns raw question text into its canonical dedup form.
//
// The text is NFKC-folded (so full-width and half-width forms of the same
// character collide), lowercased, whitespace runs are collapsed to a single
// space and trailing punctuation is dropped. Normalize is idempotent.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// KeyOf returns the stable identifier for a question text: the hex SHA-256
// of its normalized form, truncated to 128 bits.
func KeyOf(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:16])
}
