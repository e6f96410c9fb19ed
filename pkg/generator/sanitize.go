package generator

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInput is the number of characters of input the extractor reads.
// Longer input is truncated, not rejected.
const DefaultMaxInput = 10000

// Sanitize truncates input to max characters, replaces invalid UTF-8 and
// strips control characters other than newline, tab and carriage return.
// It reports whether the input was truncated.
func Sanitize(input string, max int) (string, bool) {
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "�")
	}

	truncated := false
	if max > 0 && utf8.RuneCountInString(input) > max {
		runes := []rune(input)
		input = string(runes[:max])
		truncated = true
	}

	// Fast path: if no control chars, return as is.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, truncated
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), truncated
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
