package storage

import (
	"bytes"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/cidutil"
)

// CAS is a content-addressed object store keyed by CIDv1 raw sha2-256.
//
// Contract:
// - Put MUST be idempotent and return the CID of the bytes written.
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Table is a CAS kept inside the key-value state under a fixed key prefix.
//
// A Table built over a Fork is writable; one built over a Snapshot is not.
type Table struct {
	prefix []byte
	read   Snapshot
	fork   *Fork
}

var _ CAS = Table{}

// NewTable returns a writable CAS over f.
func NewTable(f *Fork, prefix string) Table {
	return Table{prefix: []byte(prefix), read: f, fork: f}
}

// NewTableView returns a read-only CAS over s.
func NewTableView(s Snapshot, prefix string) Table {
	return Table{prefix: []byte(prefix), read: s}
}

func (t Table) key(id cid.Cid) []byte {
	k := make([]byte, 0, len(t.prefix)+id.ByteLen())
	k = append(k, t.prefix...)
	return append(k, id.Bytes()...)
}

func (t Table) Put(data []byte) (cid.Cid, error) {
	if t.fork == nil {
		return cid.Undef, ErrReadOnly
	}
	id, err := cidutil.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	k := t.key(id)
	if existing, err := t.read.Get(k); err == nil {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	t.fork.Put(k, data)
	return id, nil
}

func (t Table) Get(id cid.Cid) ([]byte, error) {
	if err := cidutil.Check(id); err != nil {
		return nil, ErrInvalidCID
	}
	b, err := t.read.Get(t.key(id))
	if err != nil {
		return nil, err
	}
	if !cidutil.Matches(id, b) {
		return nil, ErrCIDMismatch
	}
	return b, nil
}

func (t Table) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	return t.read.Has(t.key(id))
}

// Each visits every stored CID in key order until fn returns false.
func (t Table) Each(fn func(id cid.Cid, data []byte) bool) error {
	var decodeErr error
	err := t.read.Iterate(t.prefix, func(k, v []byte) bool {
		id, err := cidutil.FromBytes(k[len(t.prefix):])
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(id, v)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
