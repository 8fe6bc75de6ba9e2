package node

import (
	"sync"

	"xdao.co/ledger/blockchain"
)

// mempool is a bounded FIFO of verified transactions, deduplicated by hash.
// A hash stays known from add until forget, including while its block executes.
type mempool struct {
	mu    sync.Mutex
	limit int
	queue []*blockchain.VerifiedTransaction
	known map[string]struct{}
}

func newMempool(limit int) *mempool {
	return &mempool{limit: limit, known: make(map[string]struct{})}
}

func (m *mempool) add(vt *blockchain.VerifiedTransaction) error {
	key := vt.Hash().KeyString()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.known[key]; ok {
		return ErrDuplicate
	}
	if len(m.queue) >= m.limit {
		return ErrMempoolFull
	}
	m.known[key] = struct{}{}
	m.queue = append(m.queue, vt)
	return nil
}

func (m *mempool) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mempool) take(max int) []*blockchain.VerifiedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > len(m.queue) {
		max = len(m.queue)
	}
	out := append([]*blockchain.VerifiedTransaction(nil), m.queue[:max]...)
	m.queue = append(m.queue[:0:0], m.queue[max:]...)
	return out
}

// requeue puts txs back at the head, in order.
func (m *mempool) requeue(txs []*blockchain.VerifiedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(append([]*blockchain.VerifiedTransaction(nil), txs...), m.queue...)
}

func (m *mempool) forget(txs []*blockchain.VerifiedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vt := range txs {
		delete(m.known, vt.Hash().KeyString())
	}
}
