// Package viewstate provides durable key-value storage for listing view state.
// It defines the Store interface (port) and adapters for memory, local files,
// SQLite, Redis and S3.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("viewstate: key not found")

// ErrInvalidKey is returned for empty keys or keys containing path separators.
var ErrInvalidKey = errors.New("viewstate: invalid key")

// Store persists small string values by key. Concurrent writers to the same
// key are last-write-wins.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// validateKey rejects keys that cannot be mapped safely onto file names or
// object keys.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\\x00") || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
