// Package memory is an in-process DocumentStore. Documents are copied on
// the way in and out so callers never share maps with the store.
package memory

import (
	"context"
	"sync"

	"qms/smartqueue-service/internal/models"
	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
}

func NewStore() *Store {
	return &Store{collections: make(map[string]map[string]store.Document)}
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, store.Failure(err, "get %s/%s", collection, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return copyDocument(doc), true, nil
}

func (s *Store) Query(ctx context.Context, collection string, query store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Failure(err, "query %s", collection)
	}
	s.mu.RLock()
	var results []store.Document
	for _, doc := range s.collections[collection] {
		ok, err := store.Match(doc, query.Filters)
		if err != nil {
			s.mu.RUnlock()
			return nil, errors.Wrapf(err, "query %s", collection)
		}
		if ok {
			results = append(results, copyDocument(doc))
		}
	}
	s.mu.RUnlock()

	if query.OrderBy != nil {
		store.SortDocuments(results, *query.OrderBy)
	}
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc store.Document, merge bool) error {
	if err := ctx.Err(); err != nil {
		return store.Failure(err, "set %s/%s", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.collection(collection)
	existing, ok := col[id]
	if merge && ok {
		for key, value := range doc {
			existing[key] = value
		}
		return nil
	}
	col[id] = copyDocument(doc)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial store.Document) error {
	if err := ctx.Err(); err != nil {
		return store.Failure(err, "update %s/%s", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.collections[collection][id]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "update %s/%s", collection, id)
	}
	for key, value := range partial {
		existing[key] = value
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return store.Failure(err, "delete %s/%s", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Failure(err, "increment %s/%s", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increment(collection, id, field, delta), nil
}

func (s *Store) InsertSequenced(ctx context.Context, seq store.Sequence, collection, field string, docs []store.SequencedDocument) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Failure(err, "insert %s numbered by %s/%s", collection, seq.Collection, seq.ID)
	}
	if len(docs) == 0 {
		return 0, errors.Wrap(store.ErrInvalidInput, "no documents to insert")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.increment(seq.Collection, seq.ID, seq.Field, int64(len(docs)))
	first := last - int64(len(docs)) + 1
	col := s.collection(collection)
	for i, d := range docs {
		doc := copyDocument(d.Doc)
		doc[field] = first + int64(i)
		col[d.ID] = doc
	}
	return first, nil
}

// increment requires s.mu held for writing.
func (s *Store) increment(collection, id, field string, delta int64) int64 {
	col := s.collection(collection)
	doc, ok := col[id]
	if !ok {
		doc = store.Document{}
		col[id] = doc
	}
	current, _ := models.Int64Value(doc[field])
	next := current + delta
	doc[field] = next
	return next
}

func (s *Store) collection(name string) map[string]store.Document {
	col, ok := s.collections[name]
	if !ok {
		col = make(map[string]store.Document)
		s.collections[name] = col
	}
	return col
}

func copyDocument(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for key, value := range doc {
		out[key] = value
	}
	return out
}
