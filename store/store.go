// Package store provides the volatile key-value persistence behind the
// credential lifecycle: short-lived authorization state markers and
// long-lived token records share one backend under two key spaces with
// different TTL policies.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent, already consumed, or expired.
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal key-value contract the typed stores are built on. All
// operations are remote: every call is a blocking point that may fail or time
// out, and callers carry deadlines through ctx.
type KV interface {
	// Set writes value under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically reads and removes key. Two racing callers observe
	// exactly one value; the loser gets ErrNotFound.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
