package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "Pending"
	TxCommitted TxStatus = "Committed"
	TxRejected  TxStatus = "Rejected"
)

// Transaction is a transfer between two parties. Transactions are created
// Pending and mutated to Committed once included in an accepted block; they
// are never physically removed.
type Transaction struct {
	ID        string   `json:"id"`
	Sender    string   `json:"sender"`
	Receiver  string   `json:"receiver"`
	Amount    int64    `json:"amount"`
	Data      string   `json:"data,omitempty"`
	Status    TxStatus `json:"status"`
	BlockRef  string   `json:"block_ref,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// NewTransaction builds a Pending transaction and derives its id from the
// transfer fields and creation time.
func NewTransaction(sender, receiver string, amount int64, data string) Transaction {
	tx := Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Data:      data,
		Status:    TxPending,
		Timestamp: time.Now().Unix(),
	}
	tx.ID = tx.hash()
	return tx
}

func (t Transaction) hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%d", t.Sender, t.Receiver, t.Amount, t.Data, t.Timestamp)))
	return hex.EncodeToString(sum[:])
}
