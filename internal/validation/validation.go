// Package validation checks user-supplied place queries before they reach the
// geocoder.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// Query length bounds in runes.
const (
	MinQueryRunes = 2
	MaxQueryRunes = 100
)

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("search query is required")

// ErrQueryTooShort is returned when the query is below the minimum length.
var ErrQueryTooShort = errors.New("search query too short")

// ErrQueryTooLong is returned when the query exceeds the maximum length.
var ErrQueryTooLong = errors.New("search query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("search query contains invalid characters")

// ValidateQuery trims input, enforces length bounds (minLen, maxLen in runes;
// zero disables a bound) and restricts the query to place-name characters:
// Unicode letters and marks, digits, space, comma, hyphen, period, apostrophe.
// Interior whitespace runs collapse to one space. The trimmed query is returned.
func ValidateQuery(input string, minLen, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(input), " ")
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// isAllowedQueryRune accepts combining marks so decomposed Vietnamese input
// (e.g. "Hà" typed as "Ha" + U+0300) passes.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
