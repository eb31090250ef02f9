package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/permesh/permesh/internal/chain"
)

// cancelCheckInterval is how many nonces are tried between ctx checks.
const cancelCheckInterval = 4096

// ProofOfWork searches for a nonce whose digest carries at least
// Difficulty leading zero hex characters.
type ProofOfWork struct {
	MinerID    string
	Difficulty uint
}

func NewProofOfWork(minerID string, difficulty uint) *ProofOfWork {
	return &ProofOfWork{MinerID: minerID, Difficulty: difficulty}
}

func (p *ProofOfWork) Role() Role { return RolePoW }

func (p *ProofOfWork) ProduceCandidate(ctx context.Context, tail *chain.Block, payload []chain.Transaction) (*chain.Block, error) {
	candidate := &chain.Block{
		Index:      tail.Index + 1,
		Timestamp:  time.Now().Unix(),
		Payload:    payload,
		PrevHash:   tail.HashHex(),
		MinerID:    p.MinerID,
		Difficulty: p.Difficulty,
	}

	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		digest := candidate.PowDigest(nonce)
		if chain.MeetsDifficulty(digest, p.Difficulty) {
			candidate.Nonce = nonce
			candidate.Hash = digest
			return candidate, nil
		}
	}
}

func (p *ProofOfWork) Validate(block, tail *chain.Block) error {
	if block.PrevHash != tail.HashHex() {
		return fmt.Errorf("%w: previous hash mismatch at height %d", ErrInvalidBlock, block.Index)
	}
	recomputed := block.PowDigest(block.Nonce)
	if recomputed != block.Hash {
		return fmt.Errorf("%w: stored hash does not match recomputed digest", ErrInvalidBlock)
	}
	if !chain.MeetsDifficulty(block.Hash, p.Difficulty) {
		return fmt.Errorf("%w: digest does not meet difficulty %d", ErrInvalidBlock, p.Difficulty)
	}
	return nil
}
