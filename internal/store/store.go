package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Backend moves the whole document between memory and durable storage.
// Save receives the collection that changed.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document, collection string) error
}

// Flusher is implemented by backends that can force buffered state out.
// The store calls it after every rooms mutation that touches participants.
type Flusher interface {
	Flush(ctx context.Context, doc Document) error
}

// reloader is implemented by backends without authority over the data; the
// store reloads from them before every operation.
type reloader interface {
	ReloadOnRead() bool
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store is a document collection store over a Backend. It is safe for
// concurrent use; writes are last-writer-wins per record except for the
// participants array, which is merged.
type Store struct {
	mu      sync.Mutex
	backend Backend
	doc     Document
	loaded  bool
	reload  bool

	now func() time.Time
	log *slog.Logger
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		log:     slog.Default(),
	}
	if r, ok := backend.(reloader); ok {
		s.reload = r.ReloadOnRead()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded && !s.reload {
		return nil
	}
	doc, err := s.backend.Load(ctx)
	if err != nil {
		s.loaded = false
		return fmt.Errorf("store: load: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	for _, name := range []string{CollectionEvents, CollectionRooms} {
		if _, ok := doc[name]; !ok {
			doc[name] = []Record{}
		}
	}
	s.doc = doc
	s.loaded = true
	return nil
}

// Reload drops the in-memory state; the next call loads from the backend.
func (s *Store) Reload() {
	s.mu.Lock()
	s.loaded = false
	s.doc = nil
	s.mu.Unlock()
}

// Ping reads the document from the backend, bypassing the in-memory copy,
// to check that durable storage is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.backend.Load(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, op, collection string, flush bool) error {
	if err := s.backend.Save(ctx, s.doc, collection); err != nil {
		s.loaded = false
		s.doc = nil
		return &WriteError{Op: op, Collection: collection, Err: err}
	}
	if !flush {
		return nil
	}
	f, ok := s.backend.(Flusher)
	if !ok {
		return nil
	}
	s.log.Debug("store flush", "op", op, "collection", collection)
	if err := f.Flush(ctx, s.doc); err != nil {
		s.loaded = false
		s.doc = nil
		return &WriteError{Op: op + ".flush", Collection: collection, Err: err}
	}
	return nil
}

// Find returns copies of all records matching q.
func (s *Store) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	nq, err := normalizeMap(q)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make([]Record, 0)
	for _, r := range s.doc[collection] {
		if matches(r, nq) {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

// FindOne returns the first match; ok is false when nothing matches.
func (s *Store) FindOne(ctx context.Context, collection string, q Query) (Record, bool, error) {
	recs, err := s.Find(ctx, collection, q)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// Insert appends rec to the collection and persists it.
func (s *Store) Insert(ctx context.Context, collection string, rec Record) (Record, error) {
	nr, err := normalizeMap(rec)
	if err != nil {
		return nil, fmt.Errorf("store: insert %s: %w", collection, err)
	}
	stored := Record(nr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.doc[collection] = append(s.doc[collection], stored)
	_, hasParticipants := stored[fieldParticipants]
	if err := s.persist(ctx, "insert", collection, collection == CollectionRooms && hasParticipants); err != nil {
		return nil, err
	}
	return stored.clone(), nil
}

// Update merges patch over the first record matching q, stamps updatedAt and
// persists. ok is false when nothing matched.
func (s *Store) Update(ctx context.Context, collection string, q Query, patch Patch) (Record, bool, error) {
	nq, err := normalizeMap(q)
	if err != nil {
		return nil, false, fmt.Errorf("store: update %s: %w", collection, err)
	}
	np, err := normalizeMap(patch)
	if err != nil {
		return nil, false, fmt.Errorf("store: update %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}

	recs := s.doc[collection]
	idx := -1
	for i, r := range recs {
		if matches(r, nq) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false, nil
	}

	updated := s.apply(recs[idx], np)
	recs[idx] = updated

	_, touched := np[fieldParticipants]
	if err := s.persist(ctx, "update", collection, collection == CollectionRooms && touched); err != nil {
		return nil, false, err
	}
	return updated.clone(), true, nil
}

func (s *Store) apply(existing Record, np map[string]any) Record {
	updated := existing.clone()
	if next, ok := np[fieldParticipants]; ok && next != nil {
		np[fieldParticipants] = mergeParticipants(s.log, existing.ID(), asSlice(existing[fieldParticipants]), asSlice(next))
	}
	for k, v := range np {
		if v == nil {
			delete(updated, k)
			continue
		}
		updated[k] = v
	}
	updated[fieldUpdatedAt] = s.now().UTC().Format(time.RFC3339Nano)
	return updated
}

// Delete removes every record matching q and reports whether any was removed.
func (s *Store) Delete(ctx context.Context, collection string, q Query) (bool, error) {
	nq, err := normalizeMap(q)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	recs := s.doc[collection]
	kept := recs[:0:0]
	for _, r := range recs {
		if !matches(r, nq) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return false, nil
	}
	s.doc[collection] = kept
	if err := s.persist(ctx, "delete", collection, collection == CollectionRooms); err != nil {
		return false, err
	}
	return true, nil
}

// UpsertAll writes recs into the collection keyed by id. Records that
// already exist are updated with the same merge rules as Update, new ids are
// appended, and stored records that recs does not mention are left alone:
// removal only happens through Delete.
func (s *Store) UpsertAll(ctx context.Context, collection string, recs []Record) error {
	incoming := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		nr, err := normalizeMap(r)
		if err != nil {
			return fmt.Errorf("store: upsert %s: %w", collection, err)
		}
		if id, _ := nr[fieldID].(string); id == "" {
			return fmt.Errorf("store: upsert %s: %w", collection, ErrMissingID)
		}
		incoming = append(incoming, nr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	stored := s.doc[collection]
	index := make(map[string]int, len(stored))
	for i, r := range stored {
		index[r.ID()] = i
	}

	touched := false
	for _, nr := range incoming {
		if _, ok := nr[fieldParticipants]; ok {
			touched = true
		}
		id := nr[fieldID].(string)
		if i, ok := index[id]; ok {
			stored[i] = s.apply(stored[i], nr)
			continue
		}
		index[id] = len(stored)
		stored = append(stored, Record(nr))
	}
	s.doc[collection] = stored
	return s.persist(ctx, "upsert", collection, collection == CollectionRooms && touched)
}
