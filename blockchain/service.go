// Package blockchain is the transaction-execution core: the service and
// transaction contracts, the service registry, the configuration schema and
// the block executor.
package blockchain

import (
	"github.com/ipfs/go-cid"

	"xdao.co/ledger/keys"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/message"
	"xdao.co/ledger/storage"
)

// Height is a block height. The first block has height 1.
type Height uint64

// Service groups the transactions of one application component.
//
// Decode must be total over the message ids the service registers: it returns
// a Transaction or an error of KindDecode, and never panics.
type Service interface {
	ID() uint16
	Name() string
	Decode(raw message.RawTransaction) (Transaction, error)
	// StateDigest lists the hashes the service contributes to the block state hash.
	StateDigest(snap storage.Snapshot) []cid.Cid
}

// Transaction is a decoded, verified transaction.
//
// Execute must be a deterministic function of the fork contents and the
// transaction. A non-nil error rejects the transaction; the executor then
// discards its writes.
type Transaction interface {
	Execute(ctx *TransactionContext) error
}

// Authored is implemented by transactions that name their sender. The
// pipeline rejects such a transaction unless From is the envelope author.
type Authored interface {
	From() keys.PublicKey
}

// TransactionContext is what a transaction sees while executing.
type TransactionContext struct {
	Fork      *storage.Fork
	Height    Height
	Hash      cid.Cid
	Author    keys.PublicKey
	ServiceID uint16
	Log       logging.Logger
}

// Schema returns the core schema over the transaction's fork.
func (ctx *TransactionContext) Schema() *Schema {
	return NewSchema(ctx.Fork).WithLogger(ctx.Log)
}
