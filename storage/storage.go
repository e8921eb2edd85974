// Package storage defines the document-store contract the reconciliation
// engine is written against, along with the Firestore-backed implementation
// used in production. Documents are loosely-typed key/value records addressed
// by slash-separated paths alternating collection and document segments
// (e.g. "organizations/club/slots/abc123").
package storage

import (
	"context"
	"errors"
	"strings"
)

// Doc is the in-memory shape of a document: nested string-keyed maps with
// scalar or map values.
type Doc = map[string]interface{}

type tombstone struct{}

// Tombstone is a sentinel usable as a value inside a Merge write. The store
// deletes the field at that position without touching sibling fields. Each
// implementation translates it to its native delete primitive.
var Tombstone tombstone

// ErrInvalidPath is given when a path does not address a document or
// collection (wrong segment parity, empty segment).
var ErrInvalidPath = errors.New("path does not address a valid document or collection")

// Store defines the methods necessary for interacting with the underlying
// datastore. Consumers hold this interface so tests can drop in an in-memory
// implementation without relying on Firestore.
type Store interface {
	// Get fetches the document at path. The bool reports existence; a
	// missing document is not an error.
	Get(ctx context.Context, path string) (Doc, bool, error)
	// GetAll fetches every document in the collection at path, keyed by
	// document id.
	GetAll(ctx context.Context, path string) (map[string]Doc, error)
	// Set overwrites the document at path with data.
	Set(ctx context.Context, path string, data Doc) error
	// Merge merges data into the document at path, creating it if absent.
	// A Tombstone value deletes exactly that nested field.
	Merge(ctx context.Context, path string, data Doc) error
	// Delete removes the document at path. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, path string) error
	// Batch starts a write batch. Writes are buffered until Commit and
	// applied atomically as a group.
	Batch() Batch
}

// Batch buffers a group of writes for a single atomic commit.
type Batch interface {
	Set(path string, data Doc)
	Merge(path string, data Doc)
	Delete(path string)
	Commit(ctx context.Context) error
}

// SplitPath validates path and returns its segments. wantDoc selects whether
// the path must address a document (even segment count) or a collection
// (odd segment count).
func SplitPath(path string, wantDoc bool) ([]string, error) {
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidPath
		}
	}
	if wantDoc && len(parts)%2 != 0 {
		return nil, ErrInvalidPath
	}
	if !wantDoc && len(parts)%2 != 1 {
		return nil, ErrInvalidPath
	}
	return parts, nil
}
