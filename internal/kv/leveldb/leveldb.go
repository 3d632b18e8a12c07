// Package leveldb backs internal/kv.Store with syndtr/goleveldb, giving the
// engine a real on-disk ordered store with atomic batches and prefix range
// scans, and relying on goleveldb's own file lock to refuse a second Open
// of the same path.
package leveldb

import (
	"fmt"

	gldb "github.com/syndtr/goleveldb/leveldb"
	gldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/kv"
)

// Store is a kv.Store backed by an on-disk goleveldb database.
type Store struct {
	db *gldb.DB
}

// Open opens (creating if absent) the leveldb database rooted at path. A
// second Open of the same path while this process (or another) still
// holds it fails with chainerr.ErrStoreBusy.
func Open(path string) (*Store, error) {
	db, err := gldb.OpenFile(path, &opt.Options{})
	if err != nil {
		switch {
		case err == storage.ErrLocked:
			return nil, fmt.Errorf("%w: %s is already open: %v", chainerr.ErrStoreBusy, path, err)
		case gldberrors.IsCorrupted(err):
			return nil, fmt.Errorf("%w: corrupted database at %s: %v", chainerr.ErrStoreIO, path, err)
		default:
			return nil, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		if err == gldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	return v, true, nil
}

func (s *Store) Put(key, value []byte) error {
	if err := s.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

func (s *Store) Delete(key []byte) error {
	if err := s.db.Delete(key, nil); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

// Batch applies ops as a single atomic write: every key lands or none do,
// matching spec.md §4.2's all-or-nothing guarantee.
func (s *Store) Batch(ops []kv.Op) error {
	b := new(gldb.Batch)
	for _, op := range ops {
		if op.Del {
			b.Delete(op.Key)
		} else {
			b.Put(op.Key, op.Value)
		}
	}
	if err := s.db.Write(b, nil); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

// Scan snapshots the store and returns keys under prefix in lexicographic
// order, consistent with the writer as of the moment Scan is called.
func (s *Store) Scan(prefix []byte) (kv.Iterator, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	it := snap.NewIterator(util.BytesPrefix(prefix), nil)
	return &iter{it: it, snap: snap}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	return nil
}

type iter struct {
	it   iterator.Iterator
	snap *gldb.Snapshot
}

func (i *iter) Next() bool    { return i.it.Next() }
func (i *iter) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *iter) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *iter) Error() error  { return i.it.Error() }
func (i *iter) Release() {
	i.it.Release()
	i.snap.Release()
}
