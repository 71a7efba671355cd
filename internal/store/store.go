// Package store provides the two local persistence backends behind a
// single key/value contract.
//
// Store A (SQLiteStore) is the durable store: transactional, higher
// latency, resistant to sudden process death. Store B (SnapshotStore) is
// the fast store: synchronous, size-bounded flat files, written first on
// every save so a crash immediately after a mutation loses nothing.
//
// Alongside every value key the persistence layer keeps a companion
// freshness key ("<key>_ts") holding the integer millisecond timestamp
// of the last write to that particular store. Freshness keys are how the
// adapter arbitrates between the two stores on load.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by size-bounded stores when a write
	// would exceed the configured capacity. Callers treat this as a
	// soft failure.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// FreshnessSuffix derives the companion timestamp key for a value key.
const FreshnessSuffix = "_ts"

// FreshnessKey returns the companion freshness key for key.
func FreshnessKey(key string) string {
	return key + FreshnessSuffix
}

// KV is the contract both local stores implement.
type KV interface {
	// Get returns the stored value, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value, overwriting any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
