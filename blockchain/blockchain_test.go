package blockchain_test

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config"
	"xdao.co/ledger/config/configtest"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/message"
	"xdao.co/ledger/services/configupdater"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/memdb"
)

// probe is a service whose transactions write a key and then succeed, fail or panic.
type probe struct{ id uint16 }

const (
	probeOK uint16 = iota
	probeFail
	probePanic
)

type probeTx struct {
	kind uint16
	key  []byte
}

func (p probe) ID() uint16                                   { return p.id }
func (p probe) Name() string                                 { return "probe" }
func (p probe) StateDigest(s storage.Snapshot) []cid.Cid {
	var out []cid.Cid
	_ = s.Iterate([]byte("probe/"), func(k, _ []byte) bool {
		out = append(out, cidutil.MustSum(k))
		return true
	})
	return out
}

func (p probe) Decode(raw message.RawTransaction) (blockchain.Transaction, error) {
	if raw.MessageID > probePanic {
		return nil, blockchain.DecodeError("PROBE-001", "unknown probe message", nil)
	}
	return &probeTx{kind: raw.MessageID, key: append([]byte("probe/"), raw.Payload...)}, nil
}

func (tx *probeTx) Execute(ctx *blockchain.TransactionContext) error {
	ctx.Fork.Put(tx.key, []byte("written"))
	switch tx.kind {
	case probeFail:
		return blockchain.NewExecutionError(blockchain.CodeServiceBase, "probe failure")
	case probePanic:
		panic("probe panic")
	}
	return nil
}

func secret(t *testing.T, b byte) keys.SecretKey {
	t.Helper()
	seed := bytes.Repeat([]byte{b}, keys.SeedSize)
	_, sk, err := keys.KeypairFromSeed(seed)
	require.NoError(t, err)
	return sk
}

func newChain(t *testing.T) (*blockchain.Blockchain, *memdb.DB) {
	t.Helper()
	reg, err := blockchain.NewRegistry(configupdater.New(), probe{id: 9})
	require.NoError(t, err)
	db := memdb.New()
	return blockchain.New(db, reg, nil), db
}

func prepare(t *testing.T, bc *blockchain.Blockchain, raw []byte) *blockchain.VerifiedTransaction {
	t.Helper()
	vt, err := bc.Prepare(raw)
	require.NoError(t, err)
	return vt
}

func probeEnvelope(t *testing.T, kind uint16, key string) []byte {
	return message.Sign(message.RawTransaction{ServiceID: 9, MessageID: kind, Payload: []byte(key)}, secret(t, 7))
}

func runBlock(t *testing.T, bc *blockchain.Blockchain, raws ...[]byte) *blockchain.BlockResult {
	t.Helper()
	var txs []*blockchain.VerifiedTransaction
	for _, r := range raws {
		txs = append(txs, prepare(t, bc, r))
	}
	res, err := bc.ExecuteBlock(txs)
	require.NoError(t, err)
	require.NoError(t, bc.Commit(res))
	return res
}

func TestRegistry(t *testing.T) {
	_, err := blockchain.NewRegistry(configupdater.New(), probe{id: configupdater.ServiceID})
	assert.True(t, blockchain.IsKind(err, blockchain.KindRegistration), "id collision: %v", err)

	_, err = blockchain.NewRegistry(nil)
	assert.True(t, blockchain.IsKind(err, blockchain.KindRegistration))

	_, err = blockchain.NewRegistry(probe{id: 3}, probe{id: 4})
	assert.True(t, blockchain.IsKind(err, blockchain.KindRegistration), "name collision: %v", err)

	reg, err := blockchain.NewRegistry(probe{id: 9}, configupdater.New())
	require.NoError(t, err)
	svcs := reg.Services()
	require.Len(t, svcs, 2)
	assert.Equal(t, uint16(1), svcs[0].ID())
	assert.Equal(t, uint16(9), svcs[1].ID())
	_, ok := reg.Lookup(2)
	assert.False(t, ok)
}

func TestPrepare_Errors(t *testing.T) {
	bc, _ := newChain(t)
	sk := secret(t, 1)

	env := message.Sign(message.RawTransaction{ServiceID: 1, MessageID: 0, Payload: []byte("x")}, sk)
	tampered := append([]byte(nil), env...)
	tampered[len(tampered)-1] ^= 1
	_, err := bc.Prepare(tampered)
	assert.True(t, blockchain.IsKind(err, blockchain.KindVerification), "tampered: %v", err)

	_, err = bc.Prepare(message.Sign(message.RawTransaction{ServiceID: 77}, sk))
	assert.True(t, blockchain.IsKind(err, blockchain.KindDecode), "unknown service: %v", err)

	_, err = bc.Prepare(env)
	assert.True(t, blockchain.IsKind(err, blockchain.KindDecode), "bad payload: %v", err)

	_, err = bc.Prepare(message.Sign(message.RawTransaction{ServiceID: 1, MessageID: 5}, sk))
	assert.True(t, blockchain.IsKind(err, blockchain.KindDecode), "unknown message: %v", err)

	other := secret(t, 2)
	tx := &configupdater.TxConfig{Sender: other.PublicKey(), Config: []byte("c"), ActualFrom: 3}
	_, err = bc.Prepare(message.Sign(tx.Raw(), sk))
	assert.True(t, blockchain.IsKind(err, blockchain.KindVerification), "author mismatch: %v", err)
}

func TestExecuteBlock_RollsBackFailedTransactions(t *testing.T) {
	bc, _ := newChain(t)
	res := runBlock(t, bc,
		probeEnvelope(t, probeFail, "a"),
		probeEnvelope(t, probeOK, "b"),
		probeEnvelope(t, probePanic, "c"),
	)

	assert.Equal(t, blockchain.Height(1), res.Height)
	require.Len(t, res.Outcomes, 3)
	require.NotNil(t, res.Outcomes[0].Err)
	assert.Equal(t, blockchain.CodeServiceBase, res.Outcomes[0].Err.Code)
	assert.Nil(t, res.Outcomes[1].Err)
	require.NotNil(t, res.Outcomes[2].Err)
	assert.Equal(t, blockchain.CodePanic, res.Outcomes[2].Err.Code)

	snap := bc.Snapshot()
	assert.False(t, snap.Has([]byte("probe/a")))
	assert.True(t, snap.Has([]byte("probe/b")))
	assert.False(t, snap.Has([]byte("probe/c")))

	r, err := bc.Schema().TransactionResult(res.Outcomes[0].Hash)
	require.NoError(t, err)
	require.NotNil(t, r.Err)
	assert.Equal(t, "probe failure", r.Err.Description)
	assert.Equal(t, blockchain.Height(1), r.Height)

	r, err = bc.Schema().TransactionResult(res.Outcomes[1].Hash)
	require.NoError(t, err)
	assert.Nil(t, r.Err)

	h, err := bc.Height()
	require.NoError(t, err)
	assert.Equal(t, blockchain.Height(1), h)
}

func TestExecuteBlock_SkipsDuplicates(t *testing.T) {
	bc, _ := newChain(t)
	env := probeEnvelope(t, probeOK, "dup")
	res := runBlock(t, bc, env, env)
	assert.Len(t, res.Outcomes, 1)

	res = runBlock(t, bc, env)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, blockchain.Height(2), res.Height)
}

func TestCommit_AtomicAndIsolated(t *testing.T) {
	bc, _ := newChain(t)
	before := bc.Snapshot()

	vt := prepare(t, bc, probeEnvelope(t, probeOK, "k"))
	res, err := bc.ExecuteBlock([]*blockchain.VerifiedTransaction{vt})
	require.NoError(t, err)
	assert.False(t, bc.Snapshot().Has([]byte("probe/k")), "executed block visible before commit")

	require.NoError(t, bc.Commit(res))
	assert.False(t, before.Has([]byte("probe/k")), "old snapshot observed commit")
	assert.True(t, bc.Snapshot().Has([]byte("probe/k")))
}

func TestStateHash_DependsOnServiceDigests(t *testing.T) {
	bc, _ := newChain(t)
	empty := runBlock(t, bc)
	again := runBlock(t, bc)
	assert.Equal(t, empty.StateHash, again.StateHash)

	changed := runBlock(t, bc, probeEnvelope(t, probeOK, "x"))
	assert.NotEqual(t, empty.StateHash, changed.StateHash)
}

func TestEndToEnd_TxConfigSchedulesConfiguration(t *testing.T) {
	bc, _ := newChain(t)
	sk := secret(t, 1)
	doc := configtest.Bytes(t, 100, cid.Undef)

	res := runBlock(t, bc, configupdater.CreateSigned(doc, 100, sk))
	require.Len(t, res.Outcomes, 1)
	require.Nil(t, res.Outcomes[0].Err)

	hash := cidutil.MustSum(doc)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, blockchain.ConfigReference{ActualFrom: 100, Hash: hash}, res.Scheduled[0])

	schema := bc.Schema()
	stored, err := schema.ConfigurationBytes(hash)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	hist, err := schema.ConfigurationHistory()
	require.NoError(t, err)
	assert.Equal(t, []blockchain.ConfigReference{{ActualFrom: 100, Hash: hash}}, hist)
}

func TestActivationGating(t *testing.T) {
	bc, _ := newChain(t)
	genesis := configtest.Stored(t, 0, cid.Undef, 1)
	gHash, err := bc.InitGenesis(genesis)
	require.NoError(t, err)

	next := configtest.Stored(t, 5, gHash, 2)
	b, err := config.Encode(next)
	require.NoError(t, err)
	res := runBlock(t, bc, configupdater.CreateSigned(b, 5, secret(t, 1)))
	require.Nil(t, res.Outcomes[0].Err)
	nHash := cidutil.MustSum(b)

	schema := bc.Schema()
	for h := blockchain.Height(0); h < 5; h++ {
		ref, doc, err := schema.ActiveConfigurationAt(h)
		require.NoError(t, err)
		assert.Equal(t, gHash, ref.Hash, "height %d", h)
		assert.Len(t, doc.Validators, 1)
	}
	for _, h := range []blockchain.Height{5, 6, 1000} {
		ref, doc, err := schema.ActiveConfigurationAt(h)
		require.NoError(t, err)
		assert.Equal(t, nHash, ref.Hash, "height %d", h)
		assert.Len(t, doc.Validators, 2)
	}
}

func TestActiveConfigurationAt_NoneScheduled(t *testing.T) {
	bc, _ := newChain(t)
	_, _, err := bc.Schema().ActiveConfigurationAt(10)
	assert.True(t, storage.IsNotFound(err))

	doc := configtest.Bytes(t, 10, cid.Undef)
	runBlock(t, bc, configupdater.CreateSigned(doc, 10, secret(t, 1)))
	_, _, err = bc.Schema().ActiveConfigurationAt(9)
	assert.True(t, storage.IsNotFound(err), "before activation: %v", err)
}

func TestTxConfig_Rejections(t *testing.T) {
	bc, _ := newChain(t)
	sk := secret(t, 1)
	first := configtest.Bytes(t, 10, cid.Undef)
	runBlock(t, bc, configupdater.CreateSigned(first, 10, sk))
	firstHash := cidutil.MustSum(first)

	histBefore, err := bc.Schema().ConfigurationHistory()
	require.NoError(t, err)

	cases := []struct {
		name string
		env  []byte
		code uint8
	}{
		{"malformed", configupdater.CreateSigned([]byte("not a configuration"), 20, sk), blockchain.CodeMalformedConfig},
		{"height mismatch", configupdater.CreateSigned(configtest.Bytes(t, 20, firstHash), 21, sk), blockchain.CodeHeightMismatch},
		{"not in future", configupdater.CreateSigned(configtest.Bytes(t, 2, firstHash), 2, sk), blockchain.CodeActivationNotInFuture},
		{"not monotonic", configupdater.CreateSigned(configtest.Bytes(t, 9, firstHash), 9, sk), blockchain.CodeActivationNotMonotonic},
		{"wrong previous", configupdater.CreateSigned(configtest.Bytes(t, 30, cid.Undef), 30, sk), blockchain.CodePreviousConfigMismatch},
	}
	for _, tc := range cases {
		res := runBlock(t, bc, tc.env)
		require.Len(t, res.Outcomes, 1, tc.name)
		require.NotNil(t, res.Outcomes[0].Err, tc.name)
		assert.Equal(t, tc.code, res.Outcomes[0].Err.Code, tc.name)
		assert.Empty(t, res.Scheduled, tc.name)
	}

	histAfter, err := bc.Schema().ConfigurationHistory()
	require.NoError(t, err)
	assert.Equal(t, histBefore, histAfter)
}

func TestInitGenesis_Rules(t *testing.T) {
	bc, _ := newChain(t)
	_, err := bc.InitGenesis(configtest.Stored(t, 3, cid.Undef, 1))
	assert.Error(t, err)

	_, err = bc.InitGenesis(configtest.Stored(t, 0, cid.Undef, 1))
	require.NoError(t, err)
	_, err = bc.InitGenesis(configtest.Stored(t, 0, cid.Undef, 1))
	assert.Error(t, err)
}

func TestSchema_ReadOnlyView(t *testing.T) {
	bc, _ := newChain(t)
	_, err := bc.Schema().CommitConfiguration(configtest.Stored(t, 5, cid.Undef, 1), 0)
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}
