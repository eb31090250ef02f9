// Package consensus holds the pluggable block production and validation
// strategies. Proof of Work and Proof of Authority are two implementations
// of the same Strategy interface so the node and gossip layers can treat
// them uniformly.
package consensus

import (
	"context"
	"errors"

	"github.com/permesh/permesh/internal/chain"
)

var (
	// ErrInvalidBlock wraps every validation failure: bad hash, bad
	// signature or a broken predecessor link.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrUnauthorizedSigner is returned when a node outside the authority
	// set attempts to produce a PoA block.
	ErrUnauthorizedSigner = errors.New("signer not in authority set")
)

// Role names a consensus strategy on the wire and in the node registry.
type Role string

const (
	RolePoW Role = "pow"
	RolePoA Role = "poa"
)

// Strategy produces and validates candidate blocks against a chain tail.
type Strategy interface {
	// ProduceCandidate builds the next block on top of tail from the given
	// payload. The search honours ctx cancellation: when a competing block
	// for the same height is accepted first, the caller cancels ctx and
	// ProduceCandidate returns ctx.Err().
	ProduceCandidate(ctx context.Context, tail *chain.Block, payload []chain.Transaction) (*chain.Block, error)

	// Validate checks a block received from a peer against the local tail.
	// A nil return means the block is acceptable.
	Validate(block, tail *chain.Block) error

	// Role identifies the strategy.
	Role() Role
}
