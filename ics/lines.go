package ics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxLineOctets is the RFC 5545 content line limit, excluding the line break.
const maxLineOctets = 75

// contentLine is a single unfolded iCalendar content line.
type contentLine struct {
	Name   string // upper-cased property name
	Params string // raw parameter text without the leading ';'
	Value  string // raw value, still escaped
	Raw    string // the unfolded line exactly as received
}

// unfold splits iCalendar text into logical lines, joining continuation lines.
func unfold(text string) ([]string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(lines) == 0 {
				return nil, fmt.Errorf("%w: continuation line %d has nothing to continue", ErrMalformedCalendarData, i+1)
			}
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// fold breaks a logical line into physical lines of at most 75 octets
// without splitting a UTF-8 sequence.
func fold(line string) []string {
	if len(line) <= maxLineOctets {
		return []string{line}
	}

	// continuation lines count their leading space against the limit
	var out []string
	for len(line) > maxLineOctets {
		cut := maxLineOctets
		for cut > 1 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		out = append(out, line[:cut])
		line = " " + line[cut:]
	}
	return append(out, line)
}

// writeLines folds and joins logical lines with CRLF.
func writeLines(b *strings.Builder, lines ...string) {
	for _, l := range lines {
		for _, physical := range fold(l) {
			b.WriteString(physical)
			b.WriteString("\r\n")
		}
	}
}

// parseLine splits a logical line into name, parameters and value. The value
// starts after the first colon that is not inside a quoted parameter value.
func parseLine(raw string) (contentLine, error) {
	inQuote := false
	nameEnd := -1
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == ';' && nameEnd < 0:
			nameEnd = i
		case c == ':':
			if nameEnd < 0 {
				nameEnd = i
			}
			name := strings.ToUpper(raw[:nameEnd])
			if !validName(name) {
				return contentLine{}, fmt.Errorf("%w: invalid property name %q", ErrMalformedCalendarData, raw[:nameEnd])
			}
			params := ""
			if nameEnd < i {
				params = raw[nameEnd+1 : i]
			}
			return contentLine{Name: name, Params: params, Value: raw[i+1:], Raw: raw}, nil
		}
	}
	return contentLine{}, fmt.Errorf("%w: unterminated property %q", ErrMalformedCalendarData, truncate(raw, 40))
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// param returns the value of a named parameter with surrounding quotes removed.
func param(params, name string) (string, bool) {
	for _, p := range splitUnquoted(params, ';') {
		key, value, ok := strings.Cut(p, "=")
		if !ok || !strings.EqualFold(key, name) {
			continue
		}
		return strings.Trim(value, `"`), true
	}
	return "", false
}

// splitUnquoted splits s on sep, ignoring separators inside double quotes.
func splitUnquoted(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// EscapeText escapes a TEXT value per RFC 5545 section 3.3.11.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			b.WriteString(`\n`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeText reverses EscapeText. A trailing lone backslash is an error.
func UnescapeText(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrMalformedCalendarData, truncate(s, 40))
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			// \\ \; \, and tolerated non-standard escapes such as \:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
