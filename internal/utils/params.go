// Package utils holds small helpers shared across layers. Nothing in here
// knows about deliveries, rules, or Todoist.
package utils

import "strconv"

// AtoiDefault parses s as an int and falls back to def when s is empty or
// not a number. Query parameters arrive as strings; handlers use this for
// limits and offsets.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampInt bounds n to the closed interval [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
