// Package memkv is an in-memory kv.Store used by every package's tests so
// the suite never touches disk. It gives the same atomicity and scan
// ordering guarantees as the leveldb-backed store, just without
// persistence.
package memkv

import (
	"bytes"
	"sort"
	"sync"

	"github.com/chainkit/node/internal/kv"
)

// Store is a sorted-map in-memory kv.Store guarded by a single mutex —
// every operation here is short, matching spec.md §5's "Pool: guarded by
// a single mutex; all operations are short and in-memory" texture applied
// to the storage layer's test double.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// Open is an in-memory constructor that ignores its path argument; path is
// accepted only so callers can swap this implementation in for leveldb.Open in tests
// without branching on signature.
func Open(string) (*Store, error) {
	return &Store{data: make(map[string][]byte)}, nil
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

// Batch applies every op under one lock acquisition, so no reader ever
// observes a partially-applied batch.
func (s *Store) Batch(ops []kv.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Del {
			delete(s.data, string(op.Key))
		} else {
			s.data[string(op.Key)] = append([]byte(nil), op.Value...)
		}
	}
	return nil
}

func (s *Store) Scan(prefix []byte) (kv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	snap := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snap[k] = s.data[k]
	}
	return &memIterator{keys: keys, values: snap, pos: -1}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memIterator struct {
	keys   []string
	values map[string][]byte
	pos    int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.values[it.keys[it.pos]] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Release()      {}
