package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
)

func TestGenesis(t *testing.T) {
	g := chain.NewGenesis()
	assert.Equal(t, uint64(0), g.Index)
	assert.Equal(t, chain.GenesisPrevHash, g.PrevHash)
}

func TestCanonicalDigestIsStable(t *testing.T) {
	tx := chain.NewTransaction("alice", "bob", 10, "")
	b := &chain.Block{
		Index:     1,
		Timestamp: 1700000000,
		Payload:   []chain.Transaction{tx},
		PrevHash:  chain.NewGenesis().HashHex(),
	}

	first := b.CanonicalDigest()
	second := b.CanonicalDigest()
	assert.Equal(t, first, second)

	// Any canonical field change must change the digest.
	b.Timestamp++
	assert.NotEqual(t, first, b.CanonicalDigest())
}

func TestHashHexPrefersMinedHash(t *testing.T) {
	b := &chain.Block{Index: 1, Timestamp: 1700000000}
	digestHex := b.HashHex()
	require.NotEmpty(t, digestHex)

	b.Hash = "00abc"
	assert.Equal(t, "00abc", b.HashHex())
}

func TestMeetsDifficulty(t *testing.T) {
	assert.True(t, chain.MeetsDifficulty("00ff", 2))
	assert.True(t, chain.MeetsDifficulty("0fff", 0))
	assert.False(t, chain.MeetsDifficulty("0fff", 2))
}

func TestTxIDs(t *testing.T) {
	a := chain.NewTransaction("alice", "bob", 1, "")
	b := chain.NewTransaction("bob", "carol", 2, "")
	block := &chain.Block{Payload: []chain.Transaction{a, b}}
	assert.Equal(t, []string{a.ID, b.ID}, block.TxIDs())
}
