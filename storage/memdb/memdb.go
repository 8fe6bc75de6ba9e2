// Package memdb is an in-memory storage.Database.
//
// Committed state is a map that is never mutated once published; Merge builds
// the next map and swaps it in, so snapshots stay valid without copying.
package memdb

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"xdao.co/ledger/storage"
)

type state struct {
	version uint64
	values  map[string][]byte

	once   sync.Once
	sorted []string
}

func (s *state) keys() []string {
	s.once.Do(func() {
		s.sorted = make([]string, 0, len(s.values))
		for k := range s.values {
			s.sorted = append(s.sorted, k)
		}
		sort.Strings(s.sorted)
	})
	return s.sorted
}

// DB is safe for concurrent use. Forks taken from it are not.
type DB struct {
	mu      sync.RWMutex
	current *state
}

var _ storage.Database = (*DB)(nil)

// New returns an empty database at version 0.
func New() *DB {
	return &DB{current: &state{values: map[string][]byte{}}}
}

func (db *DB) head() *state {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.current
}

// Snapshot returns a read-only view of the latest committed state.
func (db *DB) Snapshot() storage.Snapshot {
	return snapshot{st: db.head()}
}

// Fork returns a writable view over the latest committed state.
func (db *DB) Fork() *storage.Fork {
	return storage.NewFork(db.Snapshot())
}

// Version returns the number of patches merged so far.
func (db *DB) Version() uint64 {
	return db.head().version
}

// Merge applies p atomically.
//
// A patch whose fork was taken from an older state is rejected with
// storage.ErrStalePatch; the database has a single writer.
func (db *DB) Merge(p *storage.Patch) error {
	if p == nil {
		return errors.New("memdb: nil patch")
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	cur := db.current
	if base, ok := p.BaseVersion(); ok && base != cur.version {
		return errors.Wrapf(storage.ErrStalePatch, "memdb: patch from version %d, database at %d", base, cur.version)
	}
	next := &state{version: cur.version + 1, values: make(map[string][]byte, len(cur.values)+p.Len())}
	for k, v := range cur.values {
		next.values[k] = v
	}
	for _, c := range p.Changes() {
		if c.Deleted {
			delete(next.values, string(c.Key))
			continue
		}
		next.values[string(c.Key)] = c.Value
	}
	db.current = next
	return nil
}

type snapshot struct {
	st *state
}

func (s snapshot) Version() uint64 { return s.st.version }

func (s snapshot) Get(key []byte) ([]byte, error) {
	v, ok := s.st.values[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s snapshot) Has(key []byte) bool {
	_, ok := s.st.values[string(key)]
	return ok
}

func (s snapshot) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	ks := s.st.keys()
	i := sort.SearchStrings(ks, string(prefix))
	for ; i < len(ks); i++ {
		k := []byte(ks[i])
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !fn(k, append([]byte(nil), s.st.values[ks[i]]...)) {
			break
		}
	}
	return nil
}
