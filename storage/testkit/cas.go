// Package testkit holds conformance suites shared by storage backends.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/storage"
)

// NewCAS returns a fresh, empty CAS isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunCASConformance checks the storage.CAS contract against newCAS.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		cas := newCAS(t)
		doc := []byte("-----BEGIN XDAO CONFIGURATION-----")

		id, err := cas.Put(doc)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !id.Equals(cidutil.MustSum(doc)) {
			t.Fatalf("Put returned %s, want the CID of the bytes", id)
		}
		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, doc) {
			t.Fatalf("Get returned different bytes")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		cas := newCAS(t)
		a, err := cas.Put([]byte("twice"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		b, err := cas.Put([]byte("twice"))
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
		if !a.Equals(b) {
			t.Fatalf("ids differ: %s vs %s", a, b)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		cas := newCAS(t)
		id := cidutil.MustSum([]byte("absent"))
		if cas.Has(id) {
			t.Fatalf("Has reported a missing object")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got %v, want ErrNotFound", err)
		}
		if _, err := cas.Put([]byte("absent")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has false after Put")
		}
	})

	t.Run("Undefined", func(t *testing.T) {
		cas := newCAS(t)
		if cas.Has(cid.Undef) {
			t.Fatalf("Has(Undef) = true")
		}
		if _, err := cas.Get(cid.Undef); err == nil {
			t.Fatalf("Get(Undef) succeeded")
		}
	})
}
