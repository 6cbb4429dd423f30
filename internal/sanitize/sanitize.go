// Package sanitize reduces free text to the 7-bit printable set the text
// message gateway delivers as a single segment.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the single-segment ceiling for a text message.
const MaxLength = 160

// Result is the outcome of sanitizing one message.
type Result struct {
	Text      string
	Truncated bool
	Dropped   int // characters removed by the charset filter
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

var tildeN = strings.NewReplacer("ñ", "n", "Ñ", "N")

// Sanitize returns the deliverable form of raw. It is idempotent.
func Sanitize(raw string) string {
	return Apply(raw).Text
}

// Apply runs the four sanitization steps in order: strip diacritics, map
// ñ/Ñ, drop characters outside 0x20-0x7E (keeping LF and CR), truncate.
func Apply(raw string) Result {
	s, _, err := transform.String(stripMarks, raw)
	if err != nil {
		// The transformer only fails on invalid input it cannot consume;
		// fall back to the untouched string and let the filter clean it.
		s = raw
	}
	s = tildeN.Replace(s)

	var res Result
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
			continue
		}
		res.Dropped++
	}
	out := b.String()

	if len(out) > MaxLength {
		out = out[:MaxLength]
		res.Truncated = true
	}
	res.Text = out
	return res
}

func allowed(r rune) bool {
	return (r >= 0x20 && r <= 0x7E) || r == '\n' || r == '\r'
}
