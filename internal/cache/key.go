package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Normalize trims the query and collapses inner whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Key derives the job id of a query: 16 hex chars of xxhash64 over the normalized text.
func Key(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(Normalize(text)))
}
