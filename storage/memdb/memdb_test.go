package memdb

import (
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/testkit"
)

func TestDB_Conformance(t *testing.T) {
	testkit.RunDatabaseConformance(t, func(t *testing.T) storage.Database {
		return New()
	})
}

func TestTable_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.NewTable(New().Fork(), "cas/")
	})
}

func TestMemoryCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.NewMemoryCAS()
	})
}

func TestMerge_StaleIsWrapped(t *testing.T) {
	db := New()
	old := db.Fork()
	require.NoError(t, db.Merge(db.Fork().Patch()))

	err := db.Merge(old.Patch())
	require.Error(t, err)
	assert.Equal(t, storage.ErrStalePatch, errors.Cause(err))
	assert.ErrorIs(t, err, storage.ErrStalePatch)
	assert.Equal(t, uint64(1), db.Version())
}

func TestTableView_ReadOnly(t *testing.T) {
	db := New()
	f := db.Fork()
	id, err := storage.NewTable(f, "docs/").Put([]byte("doc"))
	require.NoError(t, err)
	require.NoError(t, db.Merge(f.Patch()))

	view := storage.NewTableView(db.Snapshot(), "docs/")
	got, err := view.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), got)

	_, err = view.Put([]byte("other"))
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	var n int
	require.NoError(t, view.Each(func(got cid.Cid, _ []byte) bool { assert.True(t, got.Equals(id)); n++; return true }))
	assert.Equal(t, 1, n)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	db := New()
	f := db.Fork()
	f.Put([]byte("k"), []byte("v"))
	require.NoError(t, db.Merge(f.Patch()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := db.Snapshot()
				v, err := s.Get([]byte("k"))
				assert.NoError(t, err)
				assert.Equal(t, "v", string(v))
			}
		}()
	}
	for i := 0; i < 10; i++ {
		f := db.Fork()
		f.Put([]byte{byte(i)}, []byte("x"))
		require.NoError(t, db.Merge(f.Patch()))
	}
	wg.Wait()
}
