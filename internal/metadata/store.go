// Package metadata defines the MetadataStore interface that backs the file
// statistics catalog, process tracking records and garbage collection
// markers. The default implementation uses Oxia.
package metadata

import (
	"context"
	"errors"
)

var (
	ErrVersionMismatch = errors.New("metadata: version mismatch")
	ErrStoreClosed     = errors.New("metadata: store closed")
)

// Version is a key's version. Versions increase on every write; zero means
// the key has never been written.
type Version int64

// KV is a stored record as returned by List.
type KV struct {
	Key     string
	Value   []byte
	Version Version
}

// GetResult is what Get found. A missing key has Exists false and Version 0.
type GetResult struct {
	Value   []byte
	Version Version
	Exists  bool
}

// condition is the compare-and-set guard shared by Put and Delete.
type condition struct {
	expected *Version
}

// PutOption guards a Put.
type PutOption func(*condition)

// DeleteOption guards a Delete.
type DeleteOption func(*condition)

// WithExpectedVersion makes Put fail with ErrVersionMismatch unless the key
// is at version v. Version 0 requires the key not to exist.
func WithExpectedVersion(v Version) PutOption {
	return func(c *condition) { c.expected = &v }
}

// WithDeleteExpectedVersion makes Delete fail with ErrVersionMismatch unless
// the key is at version v.
func WithDeleteExpectedVersion(v Version) DeleteOption {
	return func(c *condition) { c.expected = &v }
}

// ExtractExpectedVersion returns the guard set by opts, or nil.
func ExtractExpectedVersion(opts []PutOption) *Version {
	var c condition
	for _, o := range opts {
		o(&c)
	}
	return c.expected
}

// ExtractDeleteExpectedVersion returns the guard set by opts, or nil.
func ExtractDeleteExpectedVersion(opts []DeleteOption) *Version {
	var c condition
	for _, o := range opts {
		o(&c)
	}
	return c.expected
}

// MetadataStore is a versioned key-value store with ordered range reads.
// Keys are slash-separated paths under /gridlake/v1; the catalog, the
// process tracker and the orphan sweeper each own one subtree.
type MetadataStore interface {
	// Get never fails for a missing key; it reports Exists false.
	Get(ctx context.Context, key string) (GetResult, error)

	// Put writes value and returns its new version.
	Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error)

	// Delete of a missing key succeeds.
	Delete(ctx context.Context, key string, opts ...DeleteOption) error

	// DeleteRange removes every key List would return for the same bounds,
	// without a version check.
	DeleteRange(ctx context.Context, startKey, endKey string) error

	// List returns keys in [startKey, endKey) in lexicographic order. An
	// empty endKey lists every key with the prefix startKey. A limit of zero
	// or less returns all matches.
	List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error)

	Close() error
}

// Update applies fn to the current value of key and writes the result with
// a compare-and-set, retrying on version conflicts up to attempts times.
// fn receives nil when the key does not exist.
func Update(ctx context.Context, store MetadataStore, key string, attempts int, fn func(current []byte) ([]byte, error)) (Version, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur, err := store.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		var value []byte
		expected := Version(0)
		if cur.Exists {
			value = cur.Value
			expected = cur.Version
		}
		next, err := fn(value)
		if err != nil {
			return 0, err
		}
		v, err := store.Put(ctx, key, next, WithExpectedVersion(expected))
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
