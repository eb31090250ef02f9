package ledger

import (
	"context"
	"sync"

	"github.com/permesh/permesh/internal/chain"
)

// MemoryStore is an in-process ledger used by tests and the single-process
// network simulation. Semantics match the postgres store: writes are
// atomic per block and idempotent on hash.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string]*chain.Block
	order  []string
	txs    map[string]chain.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[string]*chain.Block),
		txs:    make(map[string]chain.Transaction),
	}
}

func (m *MemoryStore) WriteBlockWithTransactions(_ context.Context, block *chain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := block.HashHex()
	if _, ok := m.blocks[hash]; !ok {
		m.blocks[hash] = block
		m.order = append(m.order, hash)
	}
	for _, tx := range block.Payload {
		tx.Status = chain.TxCommitted
		tx.BlockRef = hash
		m.txs[tx.ID] = tx
	}
	return nil
}

func (m *MemoryStore) GetLatestBlock(_ context.Context) (*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *chain.Block
	for _, hash := range m.order {
		b := m.blocks[hash]
		if latest == nil || b.Index > latest.Index {
			latest = b
		}
	}
	return latest, nil
}

func (m *MemoryStore) GetBlock(_ context.Context, hash string) (*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[hash], nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, txID string) (*chain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[txID]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *MemoryStore) Close() error { return nil }
