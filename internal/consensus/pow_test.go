package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/consensus"
)

func payload() []chain.Transaction {
	return []chain.Transaction{chain.NewTransaction("alice", "bob", 10, "")}
}

func TestPowProduceCandidateMeetsDifficulty(t *testing.T) {
	pow := consensus.NewProofOfWork("miner-1", 1)
	tail := chain.NewGenesis()

	block, err := pow.ProduceCandidate(context.Background(), tail, payload())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), block.Index)
	assert.Equal(t, tail.HashHex(), block.PrevHash)
	assert.Equal(t, "miner-1", block.MinerID)
	assert.True(t, chain.MeetsDifficulty(block.Hash, 1))
	assert.Equal(t, block.PowDigest(block.Nonce), block.Hash)
}

func TestPowValidate(t *testing.T) {
	pow := consensus.NewProofOfWork("miner-1", 1)
	tail := chain.NewGenesis()

	block, err := pow.ProduceCandidate(context.Background(), tail, payload())
	require.NoError(t, err)
	require.NoError(t, pow.Validate(block, tail))

	t.Run("TamperedNonce", func(t *testing.T) {
		bad := *block
		bad.Nonce++
		assert.ErrorIs(t, pow.Validate(&bad, tail), consensus.ErrInvalidBlock)
	})

	t.Run("BrokenLink", func(t *testing.T) {
		bad := *block
		bad.PrevHash = "deadbeef"
		assert.ErrorIs(t, pow.Validate(&bad, tail), consensus.ErrInvalidBlock)
	})
}

func TestPowProduceCandidateIsCancellable(t *testing.T) {
	// A difficulty this high never terminates; cancellation must stop the
	// search promptly.
	pow := consensus.NewProofOfWork("miner-1", 32)
	tail := chain.NewGenesis()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := pow.ProduceCandidate(ctx, tail, payload())
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("candidate search did not honour cancellation")
	}
}
