// Package teststore provides an in-memory storage.Store for package tests,
// so handlers can be exercised without a running Firestore. Merge and
// Tombstone semantics mirror the Firestore adapter: a merge write touches
// only the leaf fields present in the data, and a Tombstone removes exactly
// one nested field.
package teststore

import (
	"context"
	"strings"
	"sync"

	"rinkserver/storage"
)

// Store is an in-memory implementation of storage.Store. The zero value is
// not usable; call New.
type Store struct {
	mu   sync.Mutex
	docs map[string]storage.Doc
}

// New creates an empty Store.
func New() *Store {
	return &Store{docs: map[string]storage.Doc{}}
}

func (s *Store) Get(ctx context.Context, path string) (storage.Doc, bool, error) {
	if _, err := storage.SplitPath(path, true); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, false, nil
	}
	return copyDoc(doc), true, nil
}

func (s *Store) GetAll(ctx context.Context, path string) (map[string]storage.Doc, error) {
	if _, err := storage.SplitPath(path, false); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := path + "/"
	docs := map[string]storage.Doc{}
	for docPath, doc := range s.docs {
		if !strings.HasPrefix(docPath, prefix) {
			continue
		}
		id := strings.TrimPrefix(docPath, prefix)
		if strings.Contains(id, "/") {
			continue
		}
		docs[id] = copyDoc(doc)
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, path string, data storage.Doc) error {
	if _, err := storage.SplitPath(path, true); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(path, data)
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, data storage.Doc) error {
	if _, err := storage.SplitPath(path, true); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(path, data)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := storage.SplitPath(path, true); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

func (s *Store) Batch() storage.Batch {
	return &batch{store: s}
}

// locked variants used by both direct writes and batch commit.

func (s *Store) set(path string, data storage.Doc) {
	s.docs[path] = stripTombstones(data)
}

func (s *Store) merge(path string, data storage.Doc) {
	doc, ok := s.docs[path]
	if !ok {
		doc = storage.Doc{}
	}
	s.docs[path] = mergeDoc(doc, data)
}

type op struct {
	kind string // "set", "merge", "delete"
	path string
	data storage.Doc
}

type batch struct {
	store *Store
	ops   []op
	err   error
}

func (b *batch) add(kind, path string, data storage.Doc) {
	if _, err := storage.SplitPath(path, true); err != nil && b.err == nil {
		b.err = err
		return
	}
	b.ops = append(b.ops, op{kind: kind, path: path, data: copyDoc(data)})
}

func (b *batch) Set(path string, data storage.Doc)   { b.add("set", path, data) }
func (b *batch) Merge(path string, data storage.Doc) { b.add("merge", path, data) }
func (b *batch) Delete(path string)                  { b.add("delete", path, nil) }

func (b *batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.ops {
		switch o.kind {
		case "set":
			b.store.set(o.path, o.data)
		case "merge":
			b.store.merge(o.path, o.data)
		case "delete":
			delete(b.store.docs, o.path)
		}
	}
	return nil
}

// mergeDoc merges data into doc, descending into nested maps and deleting
// fields marked with a Tombstone. doc is modified and returned.
func mergeDoc(doc, data storage.Doc) storage.Doc {
	for key, value := range data {
		if value == storage.Tombstone {
			delete(doc, key)
			continue
		}
		if nested, ok := value.(storage.Doc); ok {
			existing, ok := doc[key].(storage.Doc)
			if !ok {
				existing = storage.Doc{}
			}
			doc[key] = mergeDoc(existing, nested)
			continue
		}
		doc[key] = value
	}
	return doc
}

// stripTombstones deep-copies data, dropping tombstoned fields. A Tombstone
// inside a full overwrite has nothing to delete, so dropping it matches the
// Firestore behavior closely enough for tests.
func stripTombstones(data storage.Doc) storage.Doc {
	out := make(storage.Doc, len(data))
	for key, value := range data {
		if value == storage.Tombstone {
			continue
		}
		if nested, ok := value.(storage.Doc); ok {
			out[key] = stripTombstones(nested)
			continue
		}
		out[key] = value
	}
	return out
}

func copyDoc(doc storage.Doc) storage.Doc {
	if doc == nil {
		return nil
	}
	out := make(storage.Doc, len(doc))
	for key, value := range doc {
		if nested, ok := value.(storage.Doc); ok {
			out[key] = copyDoc(nested)
			continue
		}
		out[key] = value
	}
	return out
}
