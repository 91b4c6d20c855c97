package indexer

import (
	"strings"
	"unicode"
)

// Normalize trims text and collapses whitespace: runs of spaces and tabs become
// one space, and any run of line breaks containing a blank line becomes a single
// paragraph break ("\n\n"). Single line breaks are kept.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	space := false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r == '\n':
			newlines++
			space = false
		case unicode.IsSpace(r):
			space = true
		default:
			switch {
			case newlines >= 2:
				b.WriteString("\n\n")
			case newlines == 1:
				b.WriteByte('\n')
			case space:
				b.WriteByte(' ')
			}
			newlines = 0
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
