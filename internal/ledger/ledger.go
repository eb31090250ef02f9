// Package ledger persists accepted blocks, their transactions and the node
// registry tables. The gateway is the primary writer; nodes read and write
// only the registry via the registry package.
package ledger

import (
	"context"

	"github.com/permesh/permesh/internal/chain"
)

// Store is the durable ledger interface.
type Store interface {
	// WriteBlockWithTransactions persists a block and its transactions as
	// one atomic unit. Writes are idempotent on block hash and tx id, so
	// retried confirmation notifications are harmless.
	WriteBlockWithTransactions(ctx context.Context, block *chain.Block) error

	// GetLatestBlock returns the highest block, or nil when the ledger is
	// empty.
	GetLatestBlock(ctx context.Context) (*chain.Block, error)

	// GetBlock returns the block with the given hash, or nil.
	GetBlock(ctx context.Context, hash string) (*chain.Block, error)

	// GetTransaction returns the stored transaction, or nil.
	GetTransaction(ctx context.Context, txID string) (*chain.Transaction, error)

	Close() error
}
