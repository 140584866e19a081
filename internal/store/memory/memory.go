package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"pos-service/internal/store"
)

type entry struct {
	fields  map[string]interface{}
	version uint64
}

// Store is an in-process document store. Transactions are optimistic:
// every read records the document version and the commit is rejected and
// retried when any of them changed.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*entry
	clock       uint64
	now         func() time.Time
	maxAttempts int
}

type Option func(*Store)

// WithClock overrides the server clock used for ServerTimestamp
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxAttempts bounds transaction retries
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*entry),
		now:         time.Now,
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) List(_ context.Context, collection string, opts ...store.QueryOption) ([]store.Document, error) {
	q := store.BuildQuery(opts...)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]store.Document, 0, len(s.collections[collection]))
	for id, e := range s.collections[collection] {
		if !matches(e.fields, q.Filters) {
			continue
		}
		docs = append(docs, store.Document{ID: id, Fields: cloneFields(e.fields)})
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy == "" {
			return docs[i].ID < docs[j].ID
		}
		c := compareValues(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
		if c == 0 {
			return docs[i].ID < docs[j].ID
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	return docs, nil
}

func (s *Store) Get(_ context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Fields: cloneFields(e.fields)}, nil
}

func (s *Store) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	s.merge(e, fields, s.now())
	return nil
}

func (s *Store) Insert(_ context.Context, collection string, fields map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.put(collection, id, fields, s.now())
	return id, nil
}

// Put writes a document under a caller-chosen id, replacing any existing one
func (s *Store) Put(collection, id string, fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, fields, s.now())
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// Count returns the number of documents in a collection
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type docKey struct {
	collection string
	id         string
}

type write struct {
	key    docKey
	fields map[string]interface{}
	insert bool
}

type memTx struct {
	s      *Store
	reads  map[docKey]uint64
	writes []write
}

func (t *memTx) Get(_ context.Context, collection, id string) (store.Document, error) {
	if len(t.writes) > 0 {
		return store.Document{}, store.ErrReadAfterWrite
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	key := docKey{collection, id}
	e, ok := t.s.collections[collection][id]
	if !ok {
		t.reads[key] = 0
		return store.Document{}, store.ErrNotFound
	}
	t.reads[key] = e.version
	return store.Document{ID: id, Fields: cloneFields(e.fields)}, nil
}

func (t *memTx) Update(collection, id string, fields map[string]interface{}) {
	t.writes = append(t.writes, write{key: docKey{collection, id}, fields: cloneFields(fields)})
}

func (t *memTx) Insert(collection string, fields map[string]interface{}) string {
	id := uuid.New().String()
	t.writes = append(t.writes, write{key: docKey{collection, id}, fields: cloneFields(fields), insert: true})
	return id
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{s: s, reads: make(map[docKey]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		committed, err := s.commit(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return fmt.Errorf("%w (%d)", store.ErrTxConflict, s.maxAttempts)
}

func (s *Store) commit(tx *memTx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range tx.reads {
		var current uint64
		if e, ok := s.collections[key.collection][key.id]; ok {
			current = e.version
		}
		if current != version {
			return false, nil
		}
	}

	for _, w := range tx.writes {
		if w.insert {
			continue
		}
		if _, ok := s.collections[w.key.collection][w.key.id]; !ok {
			return false, fmt.Errorf("update %s/%s: %w", w.key.collection, w.key.id, store.ErrNotFound)
		}
	}

	now := s.now()
	for _, w := range tx.writes {
		if w.insert {
			s.put(w.key.collection, w.key.id, w.fields, now)
			continue
		}
		s.merge(s.collections[w.key.collection][w.key.id], w.fields, now)
	}
	return true, nil
}

func (s *Store) put(collection, id string, fields map[string]interface{}, now time.Time) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*entry)
		s.collections[collection] = docs
	}
	s.clock++
	docs[id] = &entry{fields: resolve(fields, now), version: s.clock}
}

func (s *Store) merge(e *entry, fields map[string]interface{}, now time.Time) {
	for k, v := range resolve(fields, now) {
		e.fields[k] = v
	}
	s.clock++
	e.version = s.clock
}

func resolve(fields map[string]interface{}, now time.Time) map[string]interface{} {
	out := cloneFields(fields)
	for k, v := range out {
		if store.IsServerTimestamp(v) {
			out[k] = now.UTC()
		}
	}
	return out
}

func matches(fields map[string]interface{}, filters []store.Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || v == nil {
			return false
		}
		if compareValues(v, f.Value) < 0 {
			return false
		}
	}
	return true
}

func compareValues(a, b interface{}) int {
	if ta, ok := a.(time.Time); ok {
		tb, err := cast.ToTimeE(b)
		if err != nil {
			return 1
		}
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		}
		return 0
	}

	if fa, err := cast.ToFloat64E(a); err == nil {
		if _, isString := a.(string); !isString {
			if fb, err := cast.ToFloat64E(b); err == nil {
				switch {
				case fa < fb:
					return -1
				case fa > fb:
					return 1
				}
				return 0
			}
		}
	}

	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func cloneFields(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneFields(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
