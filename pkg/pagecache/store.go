package pagecache

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Key identifies one logical list: what is listed, for whom, and how it
// is filtered.
type Key struct {
	Kind     string
	Identity string
	Filters  string
}

// NewKey builds a Key with filters in canonical (sorted) form.
func NewKey(kind, identity string, filters map[string]string) Key {
	v := url.Values{}
	for name, value := range filters {
		if value == "" {
			continue
		}
		v.Set(name, value)
	}
	return Key{Kind: kind, Identity: identity, Filters: v.Encode()}
}

func (k Key) String() string {
	if k.Filters == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.Identity)
	}
	return fmt.Sprintf("%s/%s?%s", k.Kind, k.Identity, k.Filters)
}

// Store maps list keys to their collections. It is owned by whoever scopes
// the session and is passed explicitly to the lists that use it.
type Store struct {
	mu      sync.Mutex
	entries map[Key]any
}

func NewStore() *Store {
	return &Store{entries: make(map[Key]any)}
}

// Replace installs a fresh empty collection for key and returns it.
func Replace[T any](s *Store, key Key, keyFn KeyFunc[T]) *Collection[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := NewCollection(keyFn)
	s.entries[key] = c
	return c
}

// Drop removes the collection for key.
func (s *Store) Drop(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DropIdentity removes every collection cached for identity and returns
// how many were removed.
func (s *Store) DropIdentity(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.entries {
		if k.Identity == identity {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Reset drops everything.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = make(map[Key]any)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}


// Keys returns the cached keys sorted by their string form.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
