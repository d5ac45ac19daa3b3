package core

import (
	"regexp"
	"strconv"
	"strings"
)

// detectPattern splits a value into the shortest non-empty leading segment
// and the trailing digit run. For values with several digit runs the prefix
// keeps every run but the last: "A1B2" splits into "A1B" and 2.
var detectPattern = regexp.MustCompile(`^(.+?)(\d+)$`)

// MatchPrefix reports whether value is exactly prefix followed by one or
// more ASCII digits, and returns the digits as an integer. Leading zeros are
// accepted. An empty prefix is valid and means the value is all digits.
func MatchPrefix(value, prefix string) (int64, bool) {
	if !strings.HasPrefix(value, prefix) {
		return 0, false
	}
	return parseDigits(value[len(prefix):])
}

// DetectPrefix infers (prefix, suffix) from a value with no expected prefix.
// The prefix must be non-empty, so "123" splits into "1" and 23 and a
// single character never matches.
func DetectPrefix(value string) (string, int64, bool) {
	m := detectPattern.FindStringSubmatch(value)
	if m == nil {
		return "", 0, false
	}
	n, ok := parseDigits(m[2])
	if !ok {
		return "", 0, false
	}
	return m[1], n, true
}

func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
