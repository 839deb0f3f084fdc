package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/docstore"
)

// DocumentStore is an in-process implementation of docstore.Store.
type DocumentStore struct {
	mu          sync.RWMutex
	docs        map[string]docstore.Document
	subscribers map[string]map[*subscription]struct{}
}

type subscription struct {
	ch   chan docstore.Snapshot
	done chan struct{}
	once sync.Once
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:        make(map[string]docstore.Document),
		subscribers: make(map[string]map[*subscription]struct{}),
	}
}

func (s *DocumentStore) Create(_ context.Context, path string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; ok {
		return docstore.ErrAlreadyExists
	}
	s.docs[path] = doc.Clone()
	s.broadcastLocked(path)
	return nil
}

func (s *DocumentStore) Get(_ context.Context, path string) (docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[path]; !ok {
		return docstore.Snapshot{Path: path}, docstore.ErrNotFound
	}
	return s.snapshotLocked(path), nil
}

func (s *DocumentStore) Replace(_ context.Context, path string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = doc.Clone()
	s.broadcastLocked(path)
	return nil
}

func (s *DocumentStore) Update(_ context.Context, path string, conds []docstore.Condition, ops ...docstore.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	if err := docstore.CheckAll(current, conds); err != nil {
		return err
	}
	// Apply to a copy so a failing op leaves the document untouched.
	next := current.Clone()
	if err := docstore.Apply(next, ops); err != nil {
		return err
	}
	s.docs[path] = next
	s.broadcastLocked(path)
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.broadcastLocked(path)
	return nil
}

func (s *DocumentStore) Query(_ context.Context, collection, field string, value any) ([]docstore.Snapshot, error) {
	cond := docstore.Equals(field, value)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Snapshot
	for path, doc := range s.docs {
		if docstore.Collection(path) != collection {
			continue
		}
		if cond.Holds(doc) {
			out = append(out, s.snapshotLocked(path))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Subscribe delivers the current snapshot right away and then the latest snapshot after
// every write. A slow callback only ever sees the newest state.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, fn func(docstore.Snapshot)) (func(), error) {
	sub := &subscription{ch: make(chan docstore.Snapshot, 1), done: make(chan struct{})}

	s.mu.Lock()
	if s.subscribers[path] == nil {
		s.subscribers[path] = make(map[*subscription]struct{})
	}
	s.subscribers[path][sub] = struct{}{}
	sub.ch <- s.snapshotLocked(path)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[path]; ok {
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(s.subscribers, path)
				}
				sub.once.Do(func() {
					close(sub.ch)
					close(sub.done)
				})
			}
		}
		s.mu.Unlock()
	}

	go func() {
		for snap := range sub.ch {
			fn(snap)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return cancel, nil
}

// Len reports how many documents are stored.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *DocumentStore) broadcastLocked(path string) {
	subs := s.subscribers[path]
	if len(subs) == 0 {
		return
	}
	snap := s.snapshotLocked(path)
	for sub := range subs {
		select {
		case sub.ch <- snap:
		default:
			// Drop the stale pending snapshot; subscribers only need the latest state.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func (s *DocumentStore) snapshotLocked(path string) docstore.Snapshot {
	doc, ok := s.docs[path]
	if !ok {
		return docstore.Snapshot{Path: path, Fields: docstore.Document{}}
	}
	return docstore.Snapshot{Path: path, Exists: true, Fields: doc.Clone()}
}
