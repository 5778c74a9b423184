// Package kvstore provides durable string-keyed JSON storage for client
// state that must survive restarts, such as the cached session token and
// the user's language preferences.
package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// Store is a durable key-value store. Values are opaque JSON blobs;
// callers own encoding and decoding.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all stored values.
	Clear(ctx context.Context) error
}
