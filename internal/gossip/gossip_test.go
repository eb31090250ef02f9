package gossip_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/gossip"
	"github.com/permesh/permesh/internal/registry"
)

func TestEnvelopeBlockRoundTrip(t *testing.T) {
	block := &chain.Block{
		Index:    1,
		PrevHash: chain.NewGenesis().HashHex(),
		Payload:  []chain.Transaction{chain.NewTransaction("alice", "bob", 10, "")},
	}

	env, err := gossip.NewEnvelope(gossip.KindBlockFound, "node-a", block)
	require.NoError(t, err)
	assert.Equal(t, gossip.KindBlockFound, env.Type)
	assert.Equal(t, "node-a", env.SenderID)

	// The envelope travels as JSON between peers.
	wire, err := json.Marshal(env)
	require.NoError(t, err)
	var received gossip.Envelope
	require.NoError(t, json.Unmarshal(wire, &received))

	decoded, err := received.Block()
	require.NoError(t, err)
	assert.Equal(t, block.Index, decoded.Index)
	assert.Equal(t, block.PrevHash, decoded.PrevHash)
	require.Len(t, decoded.Payload, 1)
	assert.Equal(t, block.Payload[0].ID, decoded.Payload[0].ID)
}

func TestEnvelopeKindMismatch(t *testing.T) {
	env, err := gossip.NewEnvelope(gossip.KindPing, "node-a", nil)
	require.NoError(t, err)

	_, err = env.Block()
	assert.Error(t, err)
	_, err = env.Transaction()
	assert.Error(t, err)
}

func TestEnvelopeNodeList(t *testing.T) {
	entries := []registry.PeerEntry{
		{NodeID: "node-b", Host: "127.0.0.1", Port: 9101, Role: "pow", Status: registry.StatusActive},
	}
	env, err := gossip.NewEnvelope(gossip.KindNodeList, "node-a", entries)
	require.NoError(t, err)

	decoded, err := env.NodeList()
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestSeenCacheDeduplicates(t *testing.T) {
	seen, err := gossip.NewSeenCache(8)
	require.NoError(t, err)

	assert.True(t, seen.FirstSeen("tx-1"))
	assert.False(t, seen.FirstSeen("tx-1"))
	assert.True(t, seen.Contains("tx-1"))
	assert.False(t, seen.Contains("tx-2"))
}

func TestSeenCacheIsBounded(t *testing.T) {
	seen, err := gossip.NewSeenCache(4)
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		seen.FirstSeen(fmt.Sprintf("id-%d", i))
	}

	// Oldest entries were evicted; the cache never grows past its bound.
	assert.False(t, seen.Contains("id-0"))
	assert.True(t, seen.Contains("id-15"))
}
