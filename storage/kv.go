// Package storage holds the ledger's key-value state (snapshots, forks and
// patches) and the content-addressed tables and archives built on top of it.
package storage

import "errors"

var (
	// ErrNotFound is returned for absent keys and unknown CIDs.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidCID rejects CIDs that are not CIDv1 raw sha2-256.
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	// ErrImmutable means different bytes are already stored under the same CID.
	ErrImmutable  = errors.New("storage: immutable object mismatch")
	ErrReadOnly   = errors.New("storage: read-only view")
	ErrStalePatch = errors.New("storage: patch base is not the latest state")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Snapshot is an immutable, read-only view of the ledger state at a fixed point.
//
// Contract:
// - Get MUST return ErrNotFound when the key is absent.
// - Iterate MUST visit keys in ascending byte order.
// - A Snapshot MUST NOT observe writes made after it was taken.
// - Snapshots MUST be safe for concurrent readers.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) bool
	// Iterate calls fn for every key that starts with prefix until fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Database is a versioned key-value store.
//
// Forks are isolated single-writer views; their writes become visible to new
// snapshots only through Merge, which applies a whole Patch or nothing.
type Database interface {
	Snapshot() Snapshot
	Fork() *Fork
	Merge(p *Patch) error
}

// Versioned is implemented by snapshots that know which committed state they show.
type Versioned interface {
	Version() uint64
}
