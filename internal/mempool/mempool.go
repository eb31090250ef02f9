// Package mempool holds the per-node pool of pending transactions awaiting
// inclusion in a candidate block.
package mempool

import (
	"sync"

	"github.com/permesh/permesh/internal/chain"
)

// Pool is a mutable ordered collection of pending transactions. Adds are
// deduplicated by transaction id.
type Pool struct {
	mu    sync.Mutex
	order []string
	txs   map[string]chain.Transaction
	wake  chan struct{}
}

func New() *Pool {
	return &Pool{
		txs:  make(map[string]chain.Transaction),
		wake: make(chan struct{}, 1),
	}
}

// Add inserts a pending transaction. It reports whether the transaction
// was new to the pool.
func (p *Pool) Add(tx chain.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[tx.ID]; ok {
		return false
	}
	tx.Status = chain.TxPending
	p.txs[tx.ID] = tx
	p.order = append(p.order, tx.ID)

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// Wake is signalled whenever a transaction lands in an empty or non-empty
// pool. The node's production loop selects on it.
func (p *Pool) Wake() <-chan struct{} {
	return p.wake
}

// Snapshot returns the pending transactions in arrival order without
// removing them. The production loop snapshots, mines, and calls
// MarkCommitted for the ids that made it into the accepted block.
func (p *Pool) Snapshot() []chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chain.Transaction, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.txs[id])
	}
	return out
}

// MarkCommitted removes the given ids from the pool. Transactions included
// in a peer's accepted block are removed the same way.
func (p *Pool) MarkCommitted(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.txs, id)
	}
	remaining := p.order[:0]
	for _, id := range p.order {
		if _, ok := p.txs[id]; ok {
			remaining = append(remaining, id)
		}
	}
	p.order = remaining
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}
