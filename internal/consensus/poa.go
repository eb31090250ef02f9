package consensus

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/permesh/permesh/internal/chain"
)

// AuthoritySet maps authorized signer ids to their ed25519 public keys.
type AuthoritySet map[string]ed25519.PublicKey

// ParseAuthoritySet builds an AuthoritySet from "signerID=hexPubKey" pairs,
// the form they take in configuration.
func ParseAuthoritySet(pairs []string) (AuthoritySet, error) {
	set := make(AuthoritySet, len(pairs))
	for _, pair := range pairs {
		id, keyHex, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid authority entry %q: expected signer=hexkey", pair)
		}
		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid public key for signer %q", id)
		}
		set[id] = ed25519.PublicKey(raw)
	}
	return set, nil
}

// Contains reports whether the signer id is authorized.
func (a AuthoritySet) Contains(signerID string) bool {
	_, ok := a[signerID]
	return ok
}

// ProofOfAuthority signs candidate blocks with the local node's ed25519
// key and validates peer blocks against the shared authority set.
type ProofOfAuthority struct {
	SignerID    string
	PrivateKey  ed25519.PrivateKey
	Authorities AuthoritySet
}

func NewProofOfAuthority(signerID string, key ed25519.PrivateKey, authorities AuthoritySet) *ProofOfAuthority {
	return &ProofOfAuthority{SignerID: signerID, PrivateKey: key, Authorities: authorities}
}

func (p *ProofOfAuthority) Role() Role { return RolePoA }

func (p *ProofOfAuthority) ProduceCandidate(ctx context.Context, tail *chain.Block, payload []chain.Transaction) (*chain.Block, error) {
	if !p.Authorities.Contains(p.SignerID) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedSigner, p.SignerID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidate := &chain.Block{
		Index:     tail.Index + 1,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
		PrevHash:  tail.HashHex(),
		SignerID:  p.SignerID,
	}
	candidate.Signature = ed25519.Sign(p.PrivateKey, candidate.CanonicalDigest())
	return candidate, nil
}

func (p *ProofOfAuthority) Validate(block, tail *chain.Block) error {
	pub, ok := p.Authorities[block.SignerID]
	if !ok {
		return fmt.Errorf("%w: %s signed block %d", ErrUnauthorizedSigner, block.SignerID, block.Index)
	}
	if block.PrevHash != tail.HashHex() {
		return fmt.Errorf("%w: previous hash mismatch at height %d", ErrInvalidBlock, block.Index)
	}
	if !ed25519.Verify(pub, block.CanonicalDigest(), block.Signature) {
		return fmt.Errorf("%w: signature verification failed for signer %s", ErrInvalidBlock, block.SignerID)
	}
	return nil
}
