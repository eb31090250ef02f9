package gateway

import (
	"sync"
	"time"
)

// TicketStatus is the externally visible lifecycle of one submission.
type TicketStatus string

const (
	StatusSubmitted TicketStatus = "SUBMITTED"
	StatusQueued    TicketStatus = "QUEUED"
	StatusMining    TicketStatus = "MINING"
	StatusConfirmed TicketStatus = "CONFIRMED"
	StatusFailed    TicketStatus = "FAILED"
	StatusTimeout   TicketStatus = "TIMEOUT"
	StatusError     TicketStatus = "ERROR"
)

// Terminal reports whether a status admits no further transitions.
func (s TicketStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusTimeout, StatusError:
		return true
	}
	return false
}

// Ticket tracks the lifecycle of one externally submitted transaction.
type Ticket struct {
	TxID    string       `json:"tx_id"`
	Status  TicketStatus `json:"status"`
	Message string       `json:"message"`
	Created time.Time    `json:"created"`
	Updated time.Time    `json:"updated"`
}

// ticketStore holds tickets in memory. Transitions never fire once a
// ticket is terminal, which is what makes retried confirmations and the
// timeout timer race-safe.
type ticketStore struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]*Ticket)}
}

func (s *ticketStore) create(txID string) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	t := &Ticket{TxID: txID, Status: StatusSubmitted, Created: now, Updated: now}
	s.tickets[txID] = t
	return t
}

// transition moves a ticket to the given status unless it is already
// terminal. It reports whether the transition happened.
func (s *ticketStore) transition(txID string, status TicketStatus, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[txID]
	if !ok || t.Status.Terminal() {
		return false
	}
	t.Status = status
	t.Message = message
	t.Updated = time.Now()
	return true
}

func (s *ticketStore) get(txID string) (Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[txID]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}
