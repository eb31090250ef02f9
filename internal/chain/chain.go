package chain

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStaleBlock is returned when a block targets a height the chain
	// has already filled. Competing blocks are resolved first-valid-wins.
	ErrStaleBlock = errors.New("block height already filled")

	// ErrBrokenLink is returned when a block's predecessor hash does not
	// match the current tail.
	ErrBrokenLink = errors.New("previous hash does not match chain tail")

	// ErrGapBlock is returned when a block skips ahead of the next height.
	ErrGapBlock = errors.New("block height leaves a gap")
)

// Chain is an append-only sequence of blocks owned by a single node.
// Blocks are never deleted or reordered.
type Chain struct {
	mu     sync.RWMutex
	blocks []*Block
}

// New returns a chain seeded with the genesis block.
func New() *Chain {
	return &Chain{blocks: []*Block{NewGenesis()}}
}

// Tail returns the most recently accepted block.
func (c *Chain) Tail() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Height returns the index of the tail block.
func (c *Chain) Height() uint64 {
	return c.Tail().Index
}

// Length returns the number of blocks including genesis.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// BlockAt returns the block at the given height, or nil.
func (c *Chain) BlockAt(height uint64) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return nil
	}
	return c.blocks[height]
}

// Append adds a block to the chain after checking the height and the
// predecessor link. Consensus-specific validation happens before Append,
// in the strategy; Append enforces only the structural invariants.
func (c *Chain) Append(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.blocks[len(c.blocks)-1]
	switch {
	case b.Index <= tail.Index:
		return fmt.Errorf("%w: height %d, tail %d", ErrStaleBlock, b.Index, tail.Index)
	case b.Index > tail.Index+1:
		return fmt.Errorf("%w: height %d, tail %d", ErrGapBlock, b.Index, tail.Index)
	case b.PrevHash != tail.HashHex():
		return fmt.Errorf("%w: height %d", ErrBrokenLink, b.Index)
	}

	c.blocks = append(c.blocks, b)
	return nil
}

// Blocks returns a snapshot copy of the chain.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}
