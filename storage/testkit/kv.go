package testkit

import (
	"bytes"
	"testing"

	"xdao.co/ledger/storage"
)

// NewDatabase returns a fresh, empty database isolated from other tests.
type NewDatabase func(t *testing.T) storage.Database

// RunDatabaseConformance checks the snapshot, fork and merge contract.
func RunDatabaseConformance(t *testing.T, newDB NewDatabase) {
	t.Helper()

	t.Run("ForkReadsOwnWrites", func(t *testing.T) {
		db := newDB(t)
		f := db.Fork()
		f.Put([]byte("a"), []byte("1"))
		got, err := f.Get([]byte("a"))
		if err != nil || string(got) != "1" {
			t.Fatalf("fork Get = %q, %v", got, err)
		}
		if db.Snapshot().Has([]byte("a")) {
			t.Fatalf("unmerged write visible in snapshot")
		}
	})

	t.Run("SnapshotIsolation", func(t *testing.T) {
		db := newDB(t)
		before := db.Snapshot()
		f := db.Fork()
		f.Put([]byte("k"), []byte("v"))
		if err := db.Merge(f.Patch()); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if before.Has([]byte("k")) {
			t.Fatalf("old snapshot observed a later merge")
		}
		if _, err := before.Get([]byte("k")); !storage.IsNotFound(err) {
			t.Fatalf("old snapshot Get: got %v, want ErrNotFound", err)
		}
		got, err := db.Snapshot().Get([]byte("k"))
		if err != nil || string(got) != "v" {
			t.Fatalf("new snapshot Get = %q, %v", got, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := newDB(t)
		f := db.Fork()
		f.Put([]byte("gone"), []byte("x"))
		if err := db.Merge(f.Patch()); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		f = db.Fork()
		f.Delete([]byte("gone"))
		if f.Has([]byte("gone")) {
			t.Fatalf("deleted key visible in fork")
		}
		if err := db.Merge(f.Patch()); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if db.Snapshot().Has([]byte("gone")) {
			t.Fatalf("deleted key visible after merge")
		}
	})

	t.Run("IterateOrdered", func(t *testing.T) {
		db := newDB(t)
		f := db.Fork()
		for _, k := range []string{"p/3", "p/1", "q/0", "p/2"} {
			f.Put([]byte(k), []byte(k))
		}
		if err := db.Merge(f.Patch()); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		f = db.Fork()
		f.Delete([]byte("p/2"))
		f.Put([]byte("p/0"), []byte("p/0"))

		var seen []string
		if err := f.Iterate([]byte("p/"), func(k, v []byte) bool {
			if !bytes.Equal(k, v) {
				t.Fatalf("value for %q = %q", k, v)
			}
			seen = append(seen, string(k))
			return true
		}); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		want := []string{"p/0", "p/1", "p/3"}
		if len(seen) != len(want) {
			t.Fatalf("Iterate saw %v, want %v", seen, want)
		}
		for i := range want {
			if seen[i] != want[i] {
				t.Fatalf("Iterate saw %v, want %v", seen, want)
			}
		}
	})

	t.Run("CheckpointRollback", func(t *testing.T) {
		db := newDB(t)
		f := db.Fork()
		f.Put([]byte("kept"), []byte("1"))
		f.Checkpoint()
		f.Put([]byte("kept"), []byte("2"))
		f.Put([]byte("dropped"), []byte("x"))
		f.Rollback()

		got, err := f.Get([]byte("kept"))
		if err != nil || string(got) != "1" {
			t.Fatalf("after rollback kept = %q, %v", got, err)
		}
		if f.Has([]byte("dropped")) {
			t.Fatalf("rolled back write still visible")
		}
	})

	t.Run("StalePatchRejected", func(t *testing.T) {
		db := newDB(t)
		a := db.Fork()
		b := db.Fork()
		a.Put([]byte("a"), []byte("1"))
		b.Put([]byte("b"), []byte("1"))
		if err := db.Merge(a.Patch()); err != nil {
			t.Fatalf("Merge a: %v", err)
		}
		if err := db.Merge(b.Patch()); err == nil {
			t.Fatalf("Merge of a patch built on an old state succeeded")
		}
		if db.Snapshot().Has([]byte("b")) {
			t.Fatalf("rejected patch was partially applied")
		}
	})
}
