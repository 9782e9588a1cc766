package models

import (
	"strings"
	"unicode"
)

// CleanControl removes Unicode control and format characters from s. Model
// output occasionally carries stray control codes that break terminal
// rendering and JSON re-serialization. Ordinary whitespace controls survive:
// streamed text and the parsed document must agree on newlines.
func CleanControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}
