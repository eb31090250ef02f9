// Package registry implements the rendezvous store nodes use for
// discovery: a shared table of node endpoints refreshed by heartbeats.
// The network-only alternative (seed nodes plus NODE_LIST gossip) plugs in
// behind the same interface in the p2p package.
package registry

import (
	"context"
	"fmt"
	"time"
)

// PeerStatus marks a registry entry as live or expired.
type PeerStatus string

const (
	StatusActive PeerStatus = "active"
	StatusStale  PeerStatus = "stale"
)

// PeerEntry is one row of the node registry.
type PeerEntry struct {
	NodeID   string     `json:"node_id"`
	Host     string     `json:"host"`
	Port     int        `json:"port"`
	Role     string     `json:"role"`
	Status   PeerStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

// Addr returns the host:port endpoint of the entry.
func (e PeerEntry) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Store is the rendezvous store interface. Nodes upsert themselves on a
// heartbeat interval and read the active set for discovery.
type Store interface {
	// Upsert inserts or refreshes an entry, marking it active.
	Upsert(ctx context.Context, entry PeerEntry) error

	// Active returns entries with status active, excluding excludeID.
	Active(ctx context.Context, excludeID string) ([]PeerEntry, error)

	// MarkStale flips entries whose last_seen is older than the cutoff.
	MarkStale(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}
