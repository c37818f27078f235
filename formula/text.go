package formula

import (
	"math"
	"strconv"
	"strings"
)

// ExtractDelimited returns the text between the nth (1-indexed) occurrence of a
// two-character delimiter pair such as "()" or "[]". One layer of surrounding
// quote characters is stripped from text and delims first.
func ExtractDelimited(text, delims string, n int) (string, bool) {
	text = stripQuotes(text)
	pair := []rune(stripQuotes(delims))
	if len(pair) != 2 || n < 1 {
		return "", false
	}
	openDelim, closeDelim := string(pair[0]), string(pair[1])

	rest := text
	for i := 1; ; i++ {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			return "", false
		}
		rest = rest[start+len(openDelim):]
		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return "", false
		}
		if i == n {
			return strings.TrimSpace(rest[:end]), true
		}
		rest = rest[end+len(closeDelim):]
	}
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseNumeric coerces text to a number. A trailing % divides by 100.
func ParseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(stripQuotes(strings.TrimSpace(s)))
	if s == "" {
		return 0, false
	}
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale = 100
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f / scale, true
}
