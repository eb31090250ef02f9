package chain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
)

func nextBlock(t *testing.T, c *chain.Chain) *chain.Block {
	t.Helper()
	tail := c.Tail()
	return &chain.Block{
		Index:     tail.Index + 1,
		Timestamp: time.Now().Unix(),
		PrevHash:  tail.HashHex(),
	}
}

func TestAppendMaintainsLinkInvariant(t *testing.T) {
	c := chain.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Append(nextBlock(t, c)))
	}

	blocks := c.Blocks()
	require.Len(t, blocks, 6)
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].HashHex(), blocks[i].PrevHash,
			"link broken between heights %d and %d", i-1, i)
	}
}

func TestAppendRejectsStaleHeight(t *testing.T) {
	c := chain.New()
	b := nextBlock(t, c)
	require.NoError(t, c.Append(b))

	// A competing block for the same height loses: first valid wins.
	competing := &chain.Block{Index: 1, Timestamp: b.Timestamp, PrevHash: chain.NewGenesis().HashHex()}
	err := c.Append(competing)
	require.ErrorIs(t, err, chain.ErrStaleBlock)
	assert.Equal(t, 2, c.Length())
}

func TestAppendRejectsBrokenLink(t *testing.T) {
	c := chain.New()
	b := nextBlock(t, c)
	b.PrevHash = "deadbeef"
	require.ErrorIs(t, c.Append(b), chain.ErrBrokenLink)
}

func TestAppendRejectsGap(t *testing.T) {
	c := chain.New()
	b := nextBlock(t, c)
	b.Index = 5
	require.ErrorIs(t, c.Append(b), chain.ErrGapBlock)
}
