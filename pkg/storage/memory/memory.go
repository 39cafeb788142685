// Package memory provides an in-memory implementation of functions.Store
// for testing and lightweight deployments. Functions are lost when the
// process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/storage"
)

// DefaultMaxSize matches the capacity used for the function registry cache.
const DefaultMaxSize = 1000

// entry holds a stored function and its LRU position.
type entry struct {
	fn      functions.Function
	lruElem *list.Element
}

// Store is an in-memory function store with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
	now     func() time.Time
}

// Ensure Store implements functions.Store at compile time.
var _ functions.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used function is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Save stores a new function.
func (s *Store) Save(_ context.Context, fn functions.Function) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[fn.Name]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[fn.Name] = &entry{
		fn:      clone(fn),
		lruElem: s.lruList.PushFront(fn.Name),
	}
	return nil
}

// Get returns a copy of the named function.
func (s *Store) Get(_ context.Context, name string) (*functions.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)

	fn := clone(e.fn)
	return &fn, nil
}

// List returns functions ordered by name, starting after opts.After.
func (s *Store) List(_ context.Context, opts functions.ListOptions) (*functions.FunctionList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		if opts.After != "" && name <= opts.After {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	result := &functions.FunctionList{}
	if opts.Limit > 0 && len(names) > opts.Limit {
		names = names[:opts.Limit]
		result.HasMore = true
	}
	result.Data = make([]functions.Function, 0, len(names))
	for _, name := range names {
		result.Data = append(result.Data, clone(s.entries[name].fn))
	}
	if result.HasMore {
		result.NextCursor = names[len(names)-1]
	}
	return result, nil
}

// Search returns functions whose name contains query, newest update first.
func (s *Store) Search(_ context.Context, query string, limit int) ([]functions.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matches []functions.Function
	for name, e := range s.entries {
		if strings.Contains(strings.ToLower(name), q) {
			matches = append(matches, clone(e.fn))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].UpdatedAt != matches[j].UpdatedAt {
			return matches[i].UpdatedAt > matches[j].UpdatedAt
		}
		return matches[i].Name < matches[j].Name
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Update applies u to the named function.
func (s *Store) Update(_ context.Context, name string, u functions.Update) (*functions.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, storage.ErrNotFound
	}

	updated := u.Apply(e.fn)
	updated.UpdatedAt = s.now().Unix()
	e.fn = updated
	s.lruList.MoveToFront(e.lruElem)

	fn := clone(updated)
	return &fn, nil
}

// Delete removes the named function.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, name)
	return nil
}

// Exists reports whether the named function is stored.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[name]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry. Must be called with
// mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	name := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, name)
}

// clone copies the slices of fn so callers cannot mutate stored state.
func clone(fn functions.Function) functions.Function {
	fn.Deps = append([]string(nil), fn.Deps...)
	fn.InputSchema = append([]byte(nil), fn.InputSchema...)
	fn.OutputSchema = append([]byte(nil), fn.OutputSchema...)
	return fn
}
