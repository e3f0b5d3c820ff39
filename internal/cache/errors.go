package cache

import "errors"

// ErrNotFound is returned by Update when no record exists for the key.
var ErrNotFound = errors.New("cache record not found")
