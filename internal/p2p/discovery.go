package p2p

import (
	"context"

	"github.com/permesh/permesh/internal/registry"
)

// PeerSource supplies the peer-set snapshot. The registry-backed source is
// the default; a static seed list serves networks without a shared
// rendezvous store.
type PeerSource interface {
	Peers(ctx context.Context) ([]registry.PeerEntry, error)
}

// RegistrySource discovers peers from the rendezvous store, excluding the
// local node.
type RegistrySource struct {
	Store  registry.Store
	SelfID string
}

func (r *RegistrySource) Peers(ctx context.Context) ([]registry.PeerEntry, error) {
	return r.Store.Active(ctx, r.SelfID)
}

// StaticSource serves a fixed seed list.
type StaticSource struct {
	Entries []registry.PeerEntry
}

func (s *StaticSource) Peers(_ context.Context) ([]registry.PeerEntry, error) {
	out := make([]registry.PeerEntry, len(s.Entries))
	copy(out, s.Entries)
	return out, nil
}
