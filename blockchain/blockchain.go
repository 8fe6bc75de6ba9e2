package blockchain

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"xdao.co/ledger/config"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/message"
	"xdao.co/ledger/storage"
)

// Blockchain executes blocks of transactions against a Database.
//
// Prepare may be called concurrently. ExecuteBlock and Commit are serialized:
// blocks execute one at a time on a single fork.
type Blockchain struct {
	db       storage.Database
	registry *Registry
	log      logging.Logger

	mu sync.Mutex
}

func New(db storage.Database, registry *Registry, log logging.Logger) *Blockchain {
	if log == nil {
		log = logging.Nop()
	}
	return &Blockchain{db: db, registry: registry, log: log}
}

func (b *Blockchain) Registry() *Registry { return b.registry }

// Snapshot returns the latest committed state.
func (b *Blockchain) Snapshot() storage.Snapshot { return b.db.Snapshot() }

// Schema returns the core schema over the latest committed state.
func (b *Blockchain) Schema() *Schema { return NewSchema(b.db.Snapshot()).WithLogger(b.log) }

// Height returns the last committed height.
func (b *Blockchain) Height() (Height, error) { return b.Schema().Height() }

// InitGenesis commits the first configuration at height 0.
func (b *Blockchain) InitGenesis(doc *config.Stored) (cid.Cid, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.db.Fork()
	hash, err := NewSchema(f).WithLogger(b.log).InitGenesis(doc)
	if err != nil {
		return cid.Undef, err
	}
	if err := b.db.Merge(f.Patch()); err != nil {
		return cid.Undef, errors.Wrap(err, "commit genesis")
	}
	return hash, nil
}

// VerifiedTransaction is a transaction that passed verification and decoding
// and is ready to execute.
type VerifiedTransaction struct {
	Signed  *message.Signed
	Service Service
	Tx      Transaction
}

func (v *VerifiedTransaction) Hash() cid.Cid { return v.Signed.Hash() }

// Prepare runs the stateless part of the pipeline on raw envelope bytes:
// signature verification, routing by service id, decoding and the author check.
func (b *Blockchain) Prepare(raw []byte) (vt *VerifiedTransaction, err error) {
	signed, err := message.Verify(raw)
	if err != nil {
		return nil, wrapError(KindVerification, "TX-VER-001", "transaction verification failed", err)
	}
	svc, ok := b.registry.Lookup(signed.Payload.ServiceID)
	if !ok {
		return nil, newError(KindDecode, "TX-DEC-001", fmt.Sprintf("unknown service id %d", signed.Payload.ServiceID))
	}

	defer func() {
		if r := recover(); r != nil {
			vt, err = nil, newError(KindInternal, "TX-DEC-002", fmt.Sprintf("service %q panicked while decoding: %v", svc.Name(), r))
		}
	}()
	tx, err := svc.Decode(signed.Payload)
	if err != nil {
		if IsKind(err, KindDecode) {
			return nil, err
		}
		return nil, DecodeError("TX-DEC-003", "decode failed", err)
	}
	if tx == nil {
		return nil, newError(KindDecode, "TX-DEC-004", fmt.Sprintf("service %q decoded message %d to nil", svc.Name(), signed.Payload.MessageID))
	}
	if a, ok := tx.(Authored); ok && a.From() != signed.Author {
		return nil, newError(KindVerification, "TX-VER-002", "transaction sender differs from envelope author")
	}
	return &VerifiedTransaction{Signed: signed, Service: svc, Tx: tx}, nil
}

// TxOutcome is the result of one transaction within a block.
type TxOutcome struct {
	Hash cid.Cid
	Err  *ExecutionError
}

// BlockResult is an executed but not yet committed block.
type BlockResult struct {
	Height    Height
	Patch     *storage.Patch
	Outcomes  []TxOutcome
	StateHash [32]byte
	// Scheduled lists configurations the block scheduled, by activation height.
	Scheduled []ConfigReference
}

// ExecuteBlock runs txs in order on a fork of the latest state at the next height.
//
// A transaction that fails or panics is recorded with its *ExecutionError and
// its writes are rolled back; the rest of the block is unaffected. Transactions
// already executed in an earlier block or earlier in this block are skipped.
func (b *Blockchain) ExecuteBlock(txs []*VerifiedTransaction) (*BlockResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fork := b.db.Fork()
	schema := NewSchema(fork).WithLogger(b.log)
	current, err := schema.Height()
	if err != nil {
		return nil, err
	}
	height := current + 1
	before, hadConfig, err := schema.LastScheduled()
	if err != nil {
		return nil, err
	}

	res := &BlockResult{Height: height}
	for _, vt := range txs {
		hash := vt.Hash()
		if _, err := schema.TransactionResult(hash); err == nil {
			b.log.Warn("skipping duplicate transaction", "hash", hash.String(), "height", uint64(height))
			continue
		} else if !storage.IsNotFound(err) {
			return nil, err
		}

		fork.Checkpoint()
		execErr := b.execute(fork, height, vt)
		if execErr != nil {
			fork.Rollback()
			b.log.Info("transaction rejected", "hash", hash.String(), "code", execErr.Code, "error", execErr.Description)
		}
		if err := schema.putResult(hash, TransactionResult{Height: height, Err: execErr}); err != nil {
			return nil, err
		}
		res.Outcomes = append(res.Outcomes, TxOutcome{Hash: hash, Err: execErr})
	}

	if err := schema.setHeight(height); err != nil {
		return nil, err
	}
	hist, err := schema.ConfigurationHistory()
	if err != nil {
		return nil, err
	}
	for _, ref := range hist {
		if !hadConfig || ref.ActualFrom > before.ActualFrom {
			res.Scheduled = append(res.Scheduled, ref)
		}
	}
	res.StateHash = b.stateHash(fork)
	res.Patch = fork.Patch()
	return res, nil
}

func (b *Blockchain) execute(fork *storage.Fork, height Height, vt *VerifiedTransaction) (execErr *ExecutionError) {
	defer func() {
		if r := recover(); r != nil {
			execErr = NewExecutionError(CodePanic, "panic: %v", r)
		}
	}()
	ctx := &TransactionContext{
		Fork:      fork,
		Height:    height,
		Hash:      vt.Hash(),
		Author:    vt.Signed.Author,
		ServiceID: vt.Service.ID(),
		Log:       b.log,
	}
	err := vt.Tx.Execute(ctx)
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return NewExecutionError(CodeInternal, "%v", err)
}

// stateHash is sha3-256 over the service digests in service id order.
func (b *Blockchain) stateHash(snap storage.Snapshot) [32]byte {
	h := sha3.New256()
	for _, svc := range b.registry.Services() {
		var id [2]byte
		binary.BigEndian.PutUint16(id[:], svc.ID())
		h.Write(id[:])
		for _, c := range svc.StateDigest(snap) {
			h.Write(c.Bytes())
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Commit merges an executed block. Snapshots taken earlier do not observe it.
func (b *Blockchain) Commit(res *BlockResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.db.Merge(res.Patch); err != nil {
		return errors.Wrapf(err, "commit block %d", res.Height)
	}
	b.log.Info("committed block", "height", uint64(res.Height), "txs", len(res.Outcomes), "state_hash", fmt.Sprintf("%x", res.StateHash))
	return nil
}
