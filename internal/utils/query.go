// Package utils holds small parsing helpers shared by the HTTP handlers.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// malformed. Surrounding space is not trimmed.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// QueryLimit reads a "limit" style query value. Missing, malformed or
// negative input means 0 (no limit); max > 0 caps the result.
func QueryLimit(s string, max int) int {
	n := AtoiDefault(strings.TrimSpace(s), 0)
	if n < 0 {
		n = 0
	}
	if max > 0 && (n == 0 || n > max) {
		n = max
	}
	return n
}
