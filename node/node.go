// Package node runs a single-node ledger: a mempool of verified transactions
// and a sequencer that seals them into blocks at a fixed interval.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/logging"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/bundle"
)

var (
	ErrDuplicate   = errors.New("node: transaction already known")
	ErrMempoolFull = errors.New("node: mempool full")
)

const (
	DefaultBlockInterval = time.Second
	DefaultMaxBlockTxs   = 1000
	DefaultMempoolSize   = 10000
)

type Options struct {
	BlockInterval time.Duration
	MaxBlockTxs   int
	MempoolSize   int
	// EmptyBlocks seals blocks even when no transaction is pending, so the
	// height keeps advancing towards scheduled activations.
	EmptyBlocks bool
	// Archive receives a copy of every scheduled configuration. Optional.
	Archive storage.CAS
	Log     logging.Logger
}

func (o *Options) setDefaults() {
	if o.BlockInterval <= 0 {
		o.BlockInterval = DefaultBlockInterval
	}
	if o.MaxBlockTxs <= 0 {
		o.MaxBlockTxs = DefaultMaxBlockTxs
	}
	if o.MempoolSize <= 0 {
		o.MempoolSize = DefaultMempoolSize
	}
	if o.Log == nil {
		o.Log = logging.Nop()
	}
}

type Node struct {
	chain *blockchain.Blockchain
	opts  Options
	pool  *mempool

	sealMu sync.Mutex
}

func New(chain *blockchain.Blockchain, opts Options) *Node {
	opts.setDefaults()
	return &Node{chain: chain, opts: opts, pool: newMempool(opts.MempoolSize)}
}

func (n *Node) Chain() *blockchain.Blockchain { return n.chain }

// Pending returns the number of transactions waiting in the mempool.
func (n *Node) Pending() int { return n.pool.len() }

// Submit verifies and decodes raw envelope bytes and queues the transaction.
// Verification and decode failures are returned as *blockchain.Error.
func (n *Node) Submit(ctx context.Context, raw []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	vt, err := n.chain.Prepare(raw)
	if err != nil {
		n.opts.Log.Debug("rejected transaction", "error", err)
		return cid.Undef, err
	}
	hash := vt.Hash()
	if _, err := n.chain.Schema().TransactionResult(hash); err == nil {
		return hash, ErrDuplicate
	} else if !storage.IsNotFound(err) {
		return cid.Undef, err
	}
	if err := n.pool.add(vt); err != nil {
		return hash, err
	}
	n.opts.Log.Debug("queued transaction", "hash", hash.String(), "service", vt.Service.Name())
	return hash, nil
}

// SealBlock executes and commits the next block from the mempool head.
func (n *Node) SealBlock() (*blockchain.BlockResult, error) {
	n.sealMu.Lock()
	defer n.sealMu.Unlock()
	txs := n.pool.take(n.opts.MaxBlockTxs)
	res, err := n.chain.ExecuteBlock(txs)
	if err == nil {
		err = n.chain.Commit(res)
	}
	if err != nil {
		n.pool.requeue(txs)
		return nil, err
	}
	n.pool.forget(txs)
	n.mirror(res)
	return res, nil
}

// mirror copies scheduled configurations to the archive. The ledger state is
// authoritative, so failures are logged and not returned.
func (n *Node) mirror(res *blockchain.BlockResult) {
	if n.opts.Archive == nil || len(res.Scheduled) == 0 {
		return
	}
	ids := make([]cid.Cid, 0, len(res.Scheduled))
	for _, ref := range res.Scheduled {
		ids = append(ids, ref.Hash)
	}
	copied, err := storage.Mirror(n.opts.Archive, n.chain.Schema().Configurations(), ids)
	if err != nil {
		n.opts.Log.Error("archive mirror failed", "height", uint64(res.Height), "error", err)
		return
	}
	for _, id := range copied {
		n.opts.Log.Info("archived configuration", "hash", id.String())
	}
}

// Run seals blocks every BlockInterval until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n.pool.len() == 0 && !n.opts.EmptyBlocks {
				continue
			}
			if _, err := n.SealBlock(); err != nil {
				n.opts.Log.Error("seal block failed", "error", err)
			}
		}
	}
}

// ConfigurationBytes returns a stored configuration document.
func (n *Node) ConfigurationBytes(hash cid.Cid) ([]byte, error) {
	return n.chain.Schema().ConfigurationBytes(hash)
}

// ActiveConfiguration returns the hash and document bytes of the
// configuration active at h.
func (n *Node) ActiveConfiguration(h blockchain.Height) (cid.Cid, []byte, error) {
	schema := n.chain.Schema()
	ref, _, err := schema.ActiveConfigurationAt(h)
	if err != nil {
		return cid.Undef, nil, err
	}
	b, err := schema.ConfigurationBytes(ref.Hash)
	return ref.Hash, b, err
}

// ExportHistory writes every scheduled configuration as a bundle labelled
// "actual_from=<h>".
func (n *Node) ExportHistory(w io.Writer) error {
	schema := n.chain.Schema()
	hist, err := schema.ConfigurationHistory()
	if err != nil {
		return err
	}
	entries := make([]bundle.Entry, 0, len(hist))
	for _, ref := range hist {
		entries = append(entries, bundle.Entry{ID: ref.Hash, Label: fmt.Sprintf("actual_from=%d", ref.ActualFrom)})
	}
	return bundle.Export(w, schema.Configurations(), entries)
}
