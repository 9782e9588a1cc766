// Package stream extracts a single string field from a JSON document that
// arrives as an ordered sequence of text fragments with arbitrary boundaries.
// The target field's value is emitted incrementally, decoded, while the full
// raw text is accumulated for a later whole-document parse.
package stream

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

type phase int

const (
	phaseSeekKey phase = iota
	phaseSeekColon
	phaseSeekQuote
	phaseInValue
	phaseDone
)

type escState int

const (
	escNone      escState = iota
	escStart              // saw a backslash, next byte selects the escape
	escUnicode            // inside \uXXXX, collecting hex digits
	escSurrogate          // decoded a high surrogate, expecting `\uXXXX` low half
)

// Extractor scans fragments for one JSON object key whose value is a string
// and emits the decoded value as it becomes available. After the closing quote
// it switches to pass-through and only accumulates raw text.
//
// An Extractor is good for exactly one streaming call and is not safe for
// concurrent use.
type Extractor struct {
	key   string // literal key including surrounding quotes
	raw   strings.Builder
	value strings.Builder

	state phase
	buf   string // unscanned text carried across fragments

	esc       escState
	hex       []byte // collected hex digits of the pending \u escape
	surrogate rune   // pending high surrogate, valid in escSurrogate
	surSeen   int    // bytes of the `\u` introducer consumed for the low half
}

// New returns an extractor for the given object key (without quotes).
func New(field string) *Extractor {
	return &Extractor{key: `"` + field + `"`, hex: make([]byte, 0, 4)}
}

// Feed consumes the next fragment and returns the decoded delta of the target
// field made available by it, or "" when nothing new could be decoded yet.
func (e *Extractor) Feed(fragment string) string {
	e.raw.WriteString(fragment)
	if e.state == phaseDone {
		return ""
	}
	e.buf += fragment

	var delta strings.Builder
	for e.state != phaseDone {
		switch e.state {
		case phaseSeekKey:
			idx := strings.Index(e.buf, e.key)
			if idx < 0 {
				// Keep only a key-sized tail so a key split across
				// fragments can still match next time.
				if len(e.buf) > len(e.key) {
					e.buf = e.buf[len(e.buf)-len(e.key):]
				}
				return delta.String()
			}
			e.buf = e.buf[idx+len(e.key):]
			e.state = phaseSeekColon

		case phaseSeekColon:
			e.buf = trimLeftSpace(e.buf)
			if e.buf == "" {
				return delta.String()
			}
			if e.buf[0] != ':' {
				// Not a key/value match after all; resume the key search.
				e.state = phaseSeekKey
				continue
			}
			e.buf = e.buf[1:]
			e.state = phaseSeekQuote

		case phaseSeekQuote:
			e.buf = trimLeftSpace(e.buf)
			if e.buf == "" {
				return delta.String()
			}
			if e.buf[0] != '"' {
				e.state = phaseSeekKey
				continue
			}
			e.buf = e.buf[1:]
			e.state = phaseInValue

		case phaseInValue:
			if !e.scanValue(&delta) {
				return delta.String()
			}
		}
	}
	// Pass-through: the field is complete, drop the working buffer.
	e.buf = ""
	return delta.String()
}

// scanValue decodes as much of the string value as the buffer allows, writing
// decoded text to delta. It returns true once the closing quote was consumed.
func (e *Extractor) scanValue(delta *strings.Builder) bool {
	i := 0
	flush := func(s string) {
		delta.WriteString(s)
		e.value.WriteString(s)
	}
	for i < len(e.buf) {
		c := e.buf[i]
		switch e.esc {
		case escNone:
			if c == '\\' {
				e.esc = escStart
				i++
				continue
			}
			if c == '"' {
				e.buf = e.buf[i+1:]
				e.state = phaseDone
				return true
			}
			// Plain text: copy whole runes, holding back a trailing
			// incomplete UTF-8 sequence until its bytes arrive.
			j := i
			for j < len(e.buf) && e.buf[j] != '\\' && e.buf[j] != '"' {
				j++
			}
			plain, rest := splitCompleteRunes(e.buf[i:j])
			flush(plain)
			if rest != "" {
				if j == len(e.buf) {
					e.buf = rest
					return false
				}
				// Truncated sequence terminated by a structural byte
				// can only mean malformed input; pass it through.
				flush(rest)
			}
			i = j

		case escStart:
			switch c {
			case '"', '\\', '/':
				flush(string(c))
				e.esc = escNone
			case 'b':
				flush("\b")
				e.esc = escNone
			case 'f':
				flush("\f")
				e.esc = escNone
			case 'n':
				flush("\n")
				e.esc = escNone
			case 'r':
				flush("\r")
				e.esc = escNone
			case 't':
				flush("\t")
				e.esc = escNone
			case 'u':
				e.esc = escUnicode
				e.hex = e.hex[:0]
			default:
				// Unknown escape: fall back to the raw text.
				flush("\\" + string(c))
				e.esc = escNone
			}
			i++

		case escUnicode:
			if !isHex(c) {
				// Undecodable escape: fall back to its raw text. The
				// offending byte is left for the main loop so a closing
				// quote still terminates the value.
				flush("\\u" + string(e.hex))
				e.esc = escNone
				continue
			}
			e.hex = append(e.hex, c)
			i++
			if len(e.hex) < 4 {
				continue
			}
			r := rune(hexVal(e.hex))
			if utf16.IsSurrogate(r) {
				e.surrogate = r
				e.surSeen = 0
				e.esc = escSurrogate
				continue
			}
			flush(string(r))
			e.esc = escNone

		case escSurrogate:
			// Expect the `\u` introducer then four hex digits of the
			// low half; anything else decodes both halves separately
			// (yielding replacement runes, per package utf16).
			switch {
			case e.surSeen == 0 && c == '\\':
				e.surSeen = 1
				i++
			case e.surSeen == 1 && c == 'u':
				e.surSeen = 2
				e.hex = e.hex[:0]
				i++
			case e.surSeen == 2 && isHex(c):
				e.hex = append(e.hex, c)
				i++
				if len(e.hex) == 4 {
					low := rune(hexVal(e.hex))
					switch {
					case low >= 0xDC00 && low <= 0xDFFF:
						flush(string(utf16.DecodeRune(e.surrogate, low)))
						e.esc = escNone
					case utf16.IsSurrogate(low):
						// Two high surrogates in a row: the first is
						// unpaired, the second opens a new pair.
						flush("�")
						e.surrogate = low
						e.surSeen = 0
					default:
						flush("�")
						flush(string(low))
						e.esc = escNone
					}
				}
			default:
				flush(string(utf16.DecodeRune(e.surrogate, 0)))
				e.esc = escNone
				// Replay the introducer bytes we swallowed.
				switch e.surSeen {
				case 1:
					e.buf = "\\" + e.buf[i:]
				case 2:
					e.buf = "\\u" + string(e.hex) + e.buf[i:]
				default:
					e.buf = e.buf[i:]
				}
				i = 0
			}
		}
	}
	e.buf = ""
	return false
}

// Raw returns the concatenation of every fragment fed so far.
func (e *Extractor) Raw() string { return e.raw.String() }

// Value returns the decoded field text emitted so far.
func (e *Extractor) Value() string { return e.value.String() }

// Done reports whether the field's closing quote has been consumed.
func (e *Extractor) Done() bool { return e.state == phaseDone }

// Found reports whether the key was located and value extraction has begun.
func (e *Extractor) Found() bool { return e.state >= phaseInValue }

func trimLeftSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n")
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(digits []byte) int {
	v := 0
	for _, c := range digits {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= int(c - '0')
		case c >= 'a' && c <= 'f':
			v |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= int(c-'A') + 10
		}
	}
	return v
}

// splitCompleteRunes splits s into a prefix of whole UTF-8 sequences and a
// trailing incomplete sequence, if any.
func splitCompleteRunes(s string) (complete, rest string) {
	for k := len(s) - 1; k >= 0 && len(s)-k <= utf8.UTFMax; k-- {
		b := s[k]
		if b < utf8.RuneSelf {
			break // ASCII tail, nothing pending
		}
		if b&0xC0 == 0xC0 { // leading byte of a multi-byte sequence
			if expectedLen(b) > len(s)-k {
				return s[:k], s[k:]
			}
			break
		}
		// continuation byte, keep walking back
	}
	return s, ""
}

func expectedLen(lead byte) int {
	switch {
	case lead&0xF8 == 0xF0:
		return 4
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xE0 == 0xC0:
		return 2
	default:
		return 1
	}
}
