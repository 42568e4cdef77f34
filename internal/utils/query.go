// Package utils holds small request-parsing helpers shared by the handlers.
package utils

import (
	"strconv"
	"strings"
)

// ClampLimit parses a ?limit= value. Empty, invalid and non-positive values
// yield 0 (no limit); values above max are capped when max > 0.
func ClampLimit(s string, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	switch {
	case err != nil, n <= 0:
		return 0
	case max > 0 && n > max:
		return max
	default:
		return n
	}
}
