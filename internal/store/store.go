// Package store defines the score-sorted key store the registry runs on,
// plus the two shipped implementations: a Redis sorted set for production
// and an in-memory set for dev and tests.
package store

import (
	"context"
	"errors"
)

// Common errors returned by store implementations.
var (
	// ErrNotFound is returned when a key has no stored score.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store: closed")
)

// ScoreStore is a set of string keys, each carrying an integer score that
// also orders the set. Implementations must be safe for concurrent use;
// every listed operation is atomic at the store level. Transport failures
// (connection loss, timeout) are returned wrapped, never retried here.
type ScoreStore interface {
	// Score returns the current score for key, or ErrNotFound.
	Score(ctx context.Context, key string) (int64, error)

	// SetScore inserts or overwrites key with the given score.
	SetScore(ctx context.Context, key string, score int64) error

	// AddIfAbsent inserts key only when it is not already present.
	// Returns true if the key was newly inserted.
	AddIfAbsent(ctx context.Context, key string, score int64) (bool, error)

	// IncrScore adds delta (may be negative) to key's score and returns
	// the new value. A missing key is treated as score 0.
	IncrScore(ctx context.Context, key string, delta int64) (int64, error)

	// DecrOrRemove decrements key's score by 1 unless the result would
	// land at or below floor, in which case the key is removed instead.
	// An absent key reports removed=true. The whole check-then-write is
	// a single atomic step.
	DecrOrRemove(ctx context.Context, key string, floor int64) (score int64, removed bool, err error)

	// Remove deletes key if present; no-op otherwise.
	Remove(ctx context.Context, key string) error

	// Card returns the number of stored keys.
	Card(ctx context.Context) (int64, error)

	// RangeByScore returns all keys with score in [min, max], ordered by
	// ascending score.
	RangeByScore(ctx context.Context, min, max int64) ([]string, error)

	// RangeByRankDesc returns the keys at rank positions [start, stop)
	// when the set is ordered by descending score. Out-of-range bounds
	// yield a shorter or empty slice, never an error.
	RangeByRankDesc(ctx context.Context, start, stop int64) ([]string, error)

	// Close releases the store's resources. Operations after Close
	// return ErrClosed.
	Close() error
}
