package node

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config/configtest"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/services/configupdater"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/bundle"
	"xdao.co/ledger/storage/memdb"
)

func secret(t *testing.T, b byte) keys.SecretKey {
	t.Helper()
	_, sk, err := keys.KeypairFromSeed(bytes.Repeat([]byte{b}, keys.SeedSize))
	require.NoError(t, err)
	return sk
}

func newNode(t *testing.T, opts Options) *Node {
	t.Helper()
	reg, err := blockchain.NewRegistry(configupdater.New())
	require.NoError(t, err)
	return New(blockchain.New(memdb.New(), reg, nil), opts)
}

func TestSubmitSeal_MirrorsConfiguration(t *testing.T) {
	archive := storage.NewMemoryCAS()
	n := newNode(t, Options{Archive: archive})
	doc := configtest.Bytes(t, 10, cid.Undef)

	hash, err := n.Submit(context.Background(), configupdater.CreateSigned(doc, 10, secret(t, 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, n.Pending())

	res, err := n.SealBlock()
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Hash.Equals(hash))
	assert.Nil(t, res.Outcomes[0].Err)
	assert.Equal(t, 0, n.Pending())

	docHash := cidutil.MustSum(doc)
	got, err := archive.Get(docHash)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	stored, err := n.ConfigurationBytes(docHash)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	_, _, err = n.ActiveConfiguration(9)
	assert.True(t, storage.IsNotFound(err))
	active, b, err := n.ActiveConfiguration(10)
	require.NoError(t, err)
	assert.True(t, active.Equals(docHash))
	assert.Equal(t, doc, b)
}

func TestSubmit_Duplicates(t *testing.T) {
	n := newNode(t, Options{})
	env := configupdater.CreateSigned(configtest.Bytes(t, 10, cid.Undef), 10, secret(t, 1))

	_, err := n.Submit(context.Background(), env)
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), env)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = n.SealBlock()
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), env)
	assert.ErrorIs(t, err, ErrDuplicate, "committed transaction accepted again")
}

func TestSubmit_RejectsInvalid(t *testing.T) {
	n := newNode(t, Options{})
	_, err := n.Submit(context.Background(), []byte("garbage"))
	assert.True(t, blockchain.IsKind(err, blockchain.KindVerification))
	assert.Equal(t, 0, n.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.Submit(ctx, []byte("garbage"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMempool_BoundAndBlockSize(t *testing.T) {
	n := newNode(t, Options{MempoolSize: 2, MaxBlockTxs: 1})
	sk := secret(t, 1)
	for i := uint64(1); i <= 2; i++ {
		_, err := n.Submit(context.Background(), configupdater.CreateSigned([]byte{byte(i)}, blockchain.Height(i), sk))
		require.NoError(t, err)
	}
	_, err := n.Submit(context.Background(), configupdater.CreateSigned([]byte{3}, 3, sk))
	assert.ErrorIs(t, err, ErrMempoolFull)

	res, err := n.SealBlock()
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 1)
	assert.Equal(t, 1, n.Pending())
}

func TestRun_SealsEmptyBlocks(t *testing.T) {
	n := newNode(t, Options{BlockInterval: 5 * time.Millisecond, EmptyBlocks: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool {
		h, err := n.Chain().Height()
		return err == nil && h >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestExportHistory(t *testing.T) {
	n := newNode(t, Options{})
	first := configtest.Bytes(t, 10, cid.Undef)
	second := configtest.Bytes(t, 20, cidutil.MustSum(first))
	_, err := n.Submit(context.Background(), configupdater.CreateSigned(first, 10, secret(t, 1)))
	require.NoError(t, err)
	_, err = n.SealBlock()
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), configupdater.CreateSigned(second, 20, secret(t, 1)))
	require.NoError(t, err)
	_, err = n.SealBlock()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, n.ExportHistory(&buf))

	dst := storage.NewMemoryCAS()
	entries, err := bundle.Import(&buf, dst, bundle.ImportOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	labels := map[string]string{}
	for _, e := range entries {
		labels[e.ID.String()] = e.Label
	}
	assert.Equal(t, "actual_from=10", labels[cidutil.MustSum(first).String()])
	assert.Equal(t, "actual_from=20", labels[cidutil.MustSum(second).String()])
	assert.True(t, dst.Has(cidutil.MustSum(second)))
}
