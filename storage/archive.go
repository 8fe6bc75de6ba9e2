package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/cidutil"
)

// NamedCAS pairs a CAS backend with the name it was configured under.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// MultiCAS writes to its first backend and reads from the first backend that
// has the object, in slice order.
type MultiCAS struct {
	Backends []CAS
}

func (m MultiCAS) Put(data []byte) (cid.Cid, error) {
	if len(m.Backends) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no backends")
	}
	return m.Backends[0].Put(data)
}

func (m MultiCAS) Get(id cid.Cid) ([]byte, error) {
	return firstGet(id, m.Backends)
}

func (m MultiCAS) Has(id cid.Cid) bool {
	for _, c := range m.Backends {
		if c.Has(id) {
			return true
		}
	}
	return false
}

// ReplicatingCAS writes every object to all backends and reads in order.
// A backend returning a CID other than the one derived from the bytes fails
// the write with ErrCIDMismatch.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

// PutAll writes data to all backends and returns what each one reported.
func (r ReplicatingCAS) PutAll(data []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, errors.New("storage: ReplicatingCAS has no backends")
	}
	want, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	got := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, got, fmt.Errorf("storage: backend %q is nil", b.Name)
		}
		id, err := b.CAS.Put(data)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		got[b.Name] = id
		if !id.Equals(want) {
			return cid.Undef, got, ErrCIDMismatch
		}
	}
	return want, got, nil
}

func (r ReplicatingCAS) Put(data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(data)
	return id, err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	cs := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS != nil {
			cs = append(cs, b.CAS)
		}
	}
	return firstGet(id, cs)
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}

func firstGet(id cid.Cid, cs []CAS) ([]byte, error) {
	for _, c := range cs {
		b, err := c.Get(id)
		if IsNotFound(err) {
			continue
		}
		return b, err
	}
	return nil, ErrNotFound
}

// Mirror copies the objects named by ids from src into dst.
//
// Objects already present in dst are skipped. The returned slice lists the
// CIDs that were written.
func Mirror(dst CAS, src CAS, ids []cid.Cid) ([]cid.Cid, error) {
	var copied []cid.Cid
	for _, id := range ids {
		if dst.Has(id) {
			continue
		}
		b, err := src.Get(id)
		if err != nil {
			return copied, fmt.Errorf("storage: mirror read %s: %w", id, err)
		}
		got, err := dst.Put(b)
		if err != nil {
			return copied, fmt.Errorf("storage: mirror write %s: %w", id, err)
		}
		if !got.Equals(id) {
			return copied, ErrCIDMismatch
		}
		copied = append(copied, id)
	}
	return copied, nil
}

// memoryCAS is a process-local CAS used by the "memory" registry backend and tests.
type memoryCAS struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryCAS returns an empty in-memory CAS.
func NewMemoryCAS() CAS {
	return &memoryCAS{objects: make(map[string][]byte)}
}

func (m *memoryCAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[id.KeyString()]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objects[id.KeyString()] = append([]byte(nil), data...)
	return id, nil
}

func (m *memoryCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.objects[id.KeyString()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *memoryCAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[id.KeyString()]
	return ok
}
