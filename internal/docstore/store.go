// Package docstore defines the watchable document store the session coordinator runs on.
//
// A document is a flat map of dotted field paths ("players.u1.score") to JSON values.
// Writes are atomic per document: an Update checks all of its conditions and applies all of
// its ops, or does nothing. There are no cross-document transactions.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the path is taken.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConditionFailed is returned by Update when a condition does not hold.
	ErrConditionFailed = errors.New("document condition failed")
	// ErrUnavailable wraps transport failures of the backing store.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrNotInteger is returned when incrementing a non-integer field.
	ErrNotInteger = errors.New("field is not an integer")
)

// Store is a document store with per-document atomic updates and change notification.
type Store interface {
	// Create writes a new document and fails with ErrAlreadyExists if path is taken.
	Create(ctx context.Context, path string, doc Document) error
	// Get returns the current snapshot or ErrNotFound.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Replace overwrites the whole document, creating it if needed.
	Replace(ctx context.Context, path string, doc Document) error
	// Update applies ops atomically if every condition holds.
	Update(ctx context.Context, path string, conds []Condition, ops ...Op) error
	// Subscribe calls fn with the current snapshot and then with the latest snapshot after
	// each committed write. Intermediate states may be coalesced. fn is never called
	// concurrently for one subscription.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (cancel func(), err error)
	// Query returns every document of collection whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
}

// SetField writes a single field.
func SetField(ctx context.Context, s Store, path, field string, value any) error {
	return s.Update(ctx, path, nil, Set(field, value))
}

// AtomicIncrement adds delta to an integer field on the store side.
func AtomicIncrement(ctx context.Context, s Store, path, field string, delta int64) error {
	return s.Update(ctx, path, nil, Increment(field, delta))
}

// Path joins a collection and a document id.
func Path(collection, id string) string {
	return collection + "/" + id
}

// Collection returns the collection part of a document path.
func Collection(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
