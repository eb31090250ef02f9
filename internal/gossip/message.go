// Package gossip defines the wire schema nodes exchange and the
// first-seen bookkeeping that bounds message propagation.
package gossip

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/registry"
)

// Kind names a gossip message type.
type Kind string

const (
	KindBlockFound     Kind = "BLOCK_FOUND"
	KindNewTransaction Kind = "NEW_TRANSACTION"
	KindPing           Kind = "PING"
	KindPong           Kind = "PONG"
	KindNodeList       Kind = "NODE_LIST"
)

// Envelope is the typed wrapper around every node-to-node message.
type Envelope struct {
	Type      Kind            `json:"type"`
	SenderID  string          `json:"sender_id"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload value into an envelope, marshalling it once.
func NewEnvelope(kind Kind, senderID string, payload any) (Envelope, error) {
	env := Envelope{
		Type:      kind,
		SenderID:  senderID,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Block decodes the payload of a BLOCK_FOUND envelope.
func (e Envelope) Block() (*chain.Block, error) {
	if e.Type != KindBlockFound {
		return nil, fmt.Errorf("envelope is %s, not %s", e.Type, KindBlockFound)
	}
	var b chain.Block
	if err := json.Unmarshal(e.Payload, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block payload: %w", err)
	}
	return &b, nil
}

// Transaction decodes the payload of a NEW_TRANSACTION envelope.
func (e Envelope) Transaction() (chain.Transaction, error) {
	if e.Type != KindNewTransaction {
		return chain.Transaction{}, fmt.Errorf("envelope is %s, not %s", e.Type, KindNewTransaction)
	}
	var tx chain.Transaction
	if err := json.Unmarshal(e.Payload, &tx); err != nil {
		return chain.Transaction{}, fmt.Errorf("failed to unmarshal transaction payload: %w", err)
	}
	return tx, nil
}

// NodeList decodes the payload of a NODE_LIST envelope.
func (e Envelope) NodeList() ([]registry.PeerEntry, error) {
	if e.Type != KindNodeList {
		return nil, fmt.Errorf("envelope is %s, not %s", e.Type, KindNodeList)
	}
	var entries []registry.PeerEntry
	if err := json.Unmarshal(e.Payload, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node list payload: %w", err)
	}
	return entries, nil
}
