package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/gossip"
	"github.com/permesh/permesh/internal/registry"
)

// Broadcaster fans gossip envelopes out to the current peer-set snapshot.
// An unreachable peer is logged and skipped; one failed peer never blocks
// delivery to the rest.
type Broadcaster struct {
	client *resty.Client

	mu    sync.RWMutex
	peers []registry.PeerEntry
}

func NewBroadcaster(timeout time.Duration) *Broadcaster {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Broadcaster{client: client}
}

// UpdatePeers replaces the peer-set snapshot.
func (b *Broadcaster) UpdatePeers(peers []registry.PeerEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers = peers
}

// Peers returns the current snapshot.
func (b *Broadcaster) Peers() []registry.PeerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]registry.PeerEntry, len(b.peers))
	copy(out, b.peers)
	return out
}

// Broadcast sends the envelope to every peer in the snapshot except
// excludeID, concurrently. It returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(ctx context.Context, env gossip.Envelope, excludeID string) int {
	peers := b.Peers()

	var (
		mu        sync.Mutex
		delivered int
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		if peer.NodeID == excludeID {
			continue
		}
		g.Go(func() error {
			if err := b.Send(ctx, peer.Addr(), env); err != nil {
				slog.Warn("Peer unreachable, skipping",
					"peer", peer.NodeID, "addr", peer.Addr(), "type", env.Type, "error", err)
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

// FetchChain retrieves a peer's full chain for bootstrap sync.
func (b *Broadcaster) FetchChain(ctx context.Context, addr string) ([]*chain.Block, error) {
	var blocks []*chain.Block
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&blocks).
		Get(fmt.Sprintf("http://%s/chain", addr))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain from %s: %w", addr, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("peer %s refused chain request: %s", addr, resp.Status())
	}
	return blocks, nil
}

// Send delivers one envelope to one peer endpoint.
func (b *Broadcaster) Send(ctx context.Context, addr string, env gossip.Envelope) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(env).
		Post(fmt.Sprintf("http://%s/gossip", addr))
	if err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", env.Type, addr, err)
	}
	if resp.IsError() {
		return fmt.Errorf("peer %s rejected %s: %s", addr, env.Type, resp.Status())
	}
	return nil
}
