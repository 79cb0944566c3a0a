// Package memstore is the in-memory record store used by tests and the
// development backend.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reservo.org/internal/ids"
	"reservo.org/internal/store"
)

// Store keeps records per collection behind a single lock. Safe for
// concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Record
	unique      map[string]string // collection -> field with uniqueness enforced
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Record),
		unique:      make(map[string]string),
		now:         time.Now,
	}
}

// EnforceUnique makes Create reject duplicates of the given field within
// a collection, mirroring the unique index the other backends carry.
func (s *Store) EnforceUnique(collection, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[collection] = field
}

// Seed inserts a record with a fixed id, bypassing uniqueness checks.
// Intended for tests and dev fixtures.
func (s *Store) Seed(collection, id string, fields map[string]any) store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := store.Record{ID: id, Fields: cloneFields(fields), CreatedAt: s.now().UTC()}
	s.bucket(collection)[id] = rec
	return rec
}

func (s *Store) FindOneByField(ctx context.Context, collection, field string, value any) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := fmt.Sprint(value)
	var (
		found store.Record
		ok    bool
	)
	for _, rec := range s.collections[collection] {
		got, has := rec.StringField(field)
		if !has || got != want {
			continue
		}
		// Oldest record wins when duplicates slipped in.
		if !ok || rec.CreatedAt.Before(found.CreatedAt) {
			found = rec
			ok = true
		}
	}
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(found), nil
}

func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.collections[collection]
	out := make([]store.Record, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, cloneRecord(rec))
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if field, enforced := s.unique[collection]; enforced {
		probe := store.Record{Fields: fields}
		if want, has := probe.StringField(field); has {
			for _, rec := range s.collections[collection] {
				if got, ok := rec.StringField(field); ok && got == want {
					return store.Record{}, store.ErrConflict
				}
			}
		}
	}
	rec := store.Record{ID: ids.New(), Fields: cloneFields(fields), CreatedAt: s.now().UTC()}
	s.bucket(collection)[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	s.collections[collection][id] = rec
	return cloneRecord(rec), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) bucket(collection string) map[string]store.Record {
	bucket, ok := s.collections[collection]
	if !ok {
		bucket = make(map[string]store.Record)
		s.collections[collection] = bucket
	}
	return bucket
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func cloneRecord(rec store.Record) store.Record {
	rec.Fields = cloneFields(rec.Fields)
	return rec
}

func sortByCreatedAt(recs []store.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
