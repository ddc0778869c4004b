// Package utils provides small helpers shared across layers that carry no
// domain logic of their own.
package utils

import "strconv"

// AtoiDefault converts a string to an int, returning the provided default
// when the string is empty or not an integer. The room listing handler uses
// it to parse the page and page_size query parameters leniently, so a junk
// value degrades to the first page instead of a client error.
//
// Example:
//
//	page := utils.AtoiDefault(c.Query("page"), 1)      // "?page=3" -> 3
//	size := utils.AtoiDefault(c.Query("page_size"), 20) // missing -> 20
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
