package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GenesisPrevHash is the sentinel predecessor hash carried by the genesis block.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is one entry in a node's chain. A block is immutable once accepted.
// PoW blocks carry Nonce, Hash, MinerID and Difficulty; PoA blocks carry
// SignerID and Signature. The remaining fields are common to both.
type Block struct {
	Index     uint64        `json:"index"`
	Timestamp int64         `json:"timestamp"`
	Payload   []Transaction `json:"payload"`
	PrevHash  string        `json:"previous_hash"`

	Nonce      uint64 `json:"nonce,omitempty"`
	Hash       string `json:"hash,omitempty"`
	MinerID    string `json:"miner_id,omitempty"`
	Difficulty uint   `json:"difficulty,omitempty"`

	SignerID  string `json:"signer_id,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// NewGenesis returns the fixed first block every node starts from.
func NewGenesis() *Block {
	return &Block{
		Index:     0,
		Timestamp: 0,
		PrevHash:  GenesisPrevHash,
	}
}

// CanonicalDigest hashes the consensus-relevant fields of the block:
// index, timestamp, predecessor hash and the payload digest. Both PoW
// hashing and PoA signing operate over these bytes.
func (b *Block) CanonicalDigest() []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s", b.Index, b.Timestamp, b.PrevHash, b.payloadDigest())
	return h.Sum(nil)
}

// HashHex returns the canonical hash of the block as a hex string. For PoW
// blocks this is the stored mined hash; for all others it is the digest of
// the canonical fields.
func (b *Block) HashHex() string {
	if b.Hash != "" {
		return b.Hash
	}
	return hex.EncodeToString(b.CanonicalDigest())
}

// PowDigest computes the PoW search digest for a given nonce.
func (b *Block) PowDigest(nonce uint64) string {
	h := sha256.New()
	h.Write(b.CanonicalDigest())
	fmt.Fprintf(h, "|%d", nonce)
	return hex.EncodeToString(h.Sum(nil))
}

// MeetsDifficulty reports whether a hex digest has at least difficulty
// leading zero characters.
func MeetsDifficulty(digest string, difficulty uint) bool {
	return strings.HasPrefix(digest, strings.Repeat("0", int(difficulty)))
}

// TxIDs returns the ids of every transaction in the block payload.
func (b *Block) TxIDs() []string {
	ids := make([]string, 0, len(b.Payload))
	for _, tx := range b.Payload {
		ids = append(ids, tx.ID)
	}
	return ids
}

func (b *Block) payloadDigest() string {
	raw, err := json.Marshal(b.Payload)
	if err != nil {
		// Payload is a slice of plain structs; marshalling cannot fail.
		raw = nil
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Age returns how long ago the block was produced.
func (b *Block) Age() time.Duration {
	return time.Since(time.Unix(b.Timestamp, 0))
}
