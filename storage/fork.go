package storage

import (
	"bytes"
	"sort"
)

type change struct {
	value   []byte
	deleted bool
}

type undo struct {
	key     string
	prev    change
	hadPrev bool
}

// Fork is a mutable view layered over a Snapshot.
//
// Writes stay in the fork until its Patch is merged into the Database. A fork
// has a single writer; it is not safe for concurrent use.
//
// Checkpoint/Rollback let the caller discard the writes of one transaction
// without discarding the rest of the block.
type Fork struct {
	base    Snapshot
	changes map[string]change

	journaling bool
	journal    []undo
}

// NewFork returns an empty fork over base.
func NewFork(base Snapshot) *Fork {
	return &Fork{base: base, changes: make(map[string]change)}
}

func (f *Fork) Get(key []byte) ([]byte, error) {
	if c, ok := f.changes[string(key)]; ok {
		if c.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), c.value...), nil
	}
	return f.base.Get(key)
}

func (f *Fork) Has(key []byte) bool {
	if c, ok := f.changes[string(key)]; ok {
		return !c.deleted
	}
	return f.base.Has(key)
}

// Iterate visits the merged view of the base snapshot and the fork's writes.
func (f *Fork) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	err := f.base.Iterate(prefix, func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	})
	if err != nil {
		return err
	}
	for k, c := range f.changes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if c.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = c.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), append([]byte(nil), merged[k]...)) {
			return nil
		}
	}
	return nil
}

func (f *Fork) record(key string) {
	if !f.journaling {
		return
	}
	prev, ok := f.changes[key]
	f.journal = append(f.journal, undo{key: key, prev: prev, hadPrev: ok})
}

// Put stores a copy of value under key.
func (f *Fork) Put(key, value []byte) {
	k := string(key)
	f.record(k)
	f.changes[k] = change{value: append([]byte{}, value...)}
}

// Delete removes key.
func (f *Fork) Delete(key []byte) {
	k := string(key)
	f.record(k)
	f.changes[k] = change{deleted: true}
}

// Checkpoint marks the current fork contents as the point Rollback returns to.
// A new checkpoint replaces the previous one.
func (f *Fork) Checkpoint() {
	f.journaling = true
	f.journal = f.journal[:0]
}

// Rollback discards every write made since the last Checkpoint.
// Without a checkpoint it is a no-op.
func (f *Fork) Rollback() {
	for i := len(f.journal) - 1; i >= 0; i-- {
		u := f.journal[i]
		if u.hadPrev {
			f.changes[u.key] = u.prev
		} else {
			delete(f.changes, u.key)
		}
	}
	f.journal = f.journal[:0]
}

// Patch returns the fork's writes. The fork must not be written afterwards.
func (f *Fork) Patch() *Patch {
	p := &Patch{changes: make(map[string]change, len(f.changes))}
	for k, c := range f.changes {
		p.changes[k] = c
	}
	if v, ok := f.base.(Versioned); ok {
		p.base, p.hasBase = v.Version(), true
	}
	return p
}

// Patch is the set of writes produced by a fork.
type Patch struct {
	changes map[string]change
	base    uint64
	hasBase bool
}

// Change is one write in a Patch. Value is nil for deletions.
type Change struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// Changes returns the writes sorted by key.
func (p *Patch) Changes() []Change {
	keys := make([]string, 0, len(p.changes))
	for k := range p.changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Change, 0, len(keys))
	for _, k := range keys {
		c := p.changes[k]
		out = append(out, Change{Key: []byte(k), Value: c.value, Deleted: c.deleted})
	}
	return out
}

// Len returns the number of written keys.
func (p *Patch) Len() int { return len(p.changes) }

// BaseVersion reports the committed version the fork was taken from, if known.
func (p *Patch) BaseVersion() (uint64, bool) { return p.base, p.hasBase }
