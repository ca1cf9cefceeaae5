package core

import (
	"context"
	"errors"
	"time"
)

// DefaultJobTTL is how long an untouched job survives in the store.
// Every write resets it, so an actively polled job does not expire.
const DefaultJobTTL = time.Hour

// ErrNotFound is returned by a JobStore when the token has no live record.
var ErrNotFound = errors.New("job not found")

// ErrVersionMismatch is returned by JobStore.CompareAndSwap when the stored
// version differs from the expected one.
var ErrVersionMismatch = errors.New("job version mismatch")

// JobStore is an ephemeral key/value store for import jobs.
// Implementations must enforce the TTL passed to Put and CompareAndSwap.
type JobStore interface {
	// Get returns the job stored under token, or ErrNotFound.
	Get(ctx context.Context, token string) (ImportJob, error)

	// Put writes job under token with the given TTL, replacing any record.
	Put(ctx context.Context, token string, job ImportJob, ttl time.Duration) error

	// CompareAndSwap writes job only if the stored version equals expected.
	// On success the stored job carries version expected+1, which is also
	// returned. It fails with ErrNotFound if the record is gone and
	// ErrVersionMismatch if another writer got there first.
	CompareAndSwap(ctx context.Context, token string, expected int64, job ImportJob, ttl time.Duration) (int64, error)

	// Delete removes token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}
