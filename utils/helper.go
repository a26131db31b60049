package utils

import (
	"strings"
	"time"
)

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

// NormalizeState folds a state name for jurisdiction comparison.
func NormalizeState(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TruncateToDate drops the clock part, keeping the location.
func TruncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EscapeLike escapes the LIKE wildcards in s with escape, for use with an explicit
// ESCAPE clause.
func EscapeLike(s string, escape rune) string {
	var b strings.Builder
	for _, r := range s {
		if r == escape || r == '%' || r == '_' {
			b.WriteRune(escape)
		}
		b.WriteRune(r)
	}
	return b.String()
}
