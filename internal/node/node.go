// Package node runs one blockchain node: a local chain replica, a mempool,
// a peer-set snapshot and a consensus strategy. The production loop and
// the message-handling loop run concurrently; acceptance of a peer's
// winning block cancels an in-flight local search for the same height.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/consensus"
	"github.com/permesh/permesh/internal/gossip"
	"github.com/permesh/permesh/internal/mempool"
	"github.com/permesh/permesh/internal/p2p"
	"github.com/permesh/permesh/internal/registry"
)

// Options configures one node.
type Options struct {
	NodeID   string
	Strategy consensus.Strategy

	// Host and Port are the advertised peer endpoint, registered in the
	// rendezvous store by the heartbeat loop.
	Host string
	Port int

	// Source supplies the peer-set snapshot on every discovery tick.
	Source p2p.PeerSource

	// Registry, when set, receives heartbeat upserts for this node.
	Registry registry.Store

	// GatewayURL, when set, receives block confirmations produced by this
	// node.
	GatewayURL string

	SeenCacheSize     int
	HeartbeatInterval time.Duration
	DiscoveryInterval time.Duration
	StaleAfter        time.Duration
	PeerTimeout       time.Duration
}

// Node owns one chain replica and drives its consensus strategy.
type Node struct {
	opts        Options
	chain       *chain.Chain
	pool        *mempool.Pool
	strategy    consensus.Strategy
	broadcaster *p2p.Broadcaster
	seen        *gossip.SeenCache
	gateway     *gatewayClient

	// syncMu admits one chain sync at a time; a sync already in flight
	// makes further triggers no-ops.
	syncMu sync.Mutex

	// production guards the in-flight candidate search so a peer's
	// accepted block can cancel it cooperatively.
	production struct {
		sync.Mutex
		cancel context.CancelFunc
		height uint64
	}
}

func New(opts Options) (*Node, error) {
	if opts.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("consensus strategy is required")
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = 5 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 3 * opts.HeartbeatInterval
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = 5 * time.Second
	}

	seen, err := gossip.NewSeenCache(opts.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}

	n := &Node{
		opts:        opts,
		chain:       chain.New(),
		pool:        mempool.New(),
		strategy:    opts.Strategy,
		broadcaster: p2p.NewBroadcaster(opts.PeerTimeout),
		seen:        seen,
	}
	if opts.GatewayURL != "" {
		n.gateway = newGatewayClient(opts.GatewayURL)
	}
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() string { return n.opts.NodeID }

// Chain exposes the local chain replica.
func (n *Node) Chain() *chain.Chain { return n.chain }

// Broadcaster exposes the peer broadcaster, mainly for tests and the
// in-process network simulation.
func (n *Node) Broadcaster() *p2p.Broadcaster { return n.broadcaster }

// PendingTransactions reports the current mempool depth.
func (n *Node) PendingTransactions() int { return n.pool.Len() }

// ChainSnapshot implements p2p.Handler, serving bootstrap requests from
// late-joining peers.
func (n *Node) ChainSnapshot() []*chain.Block { return n.chain.Blocks() }

// Status implements p2p.Handler.
func (n *Node) Status() p2p.Status {
	tail := n.chain.Tail()
	return p2p.Status{
		NodeID:  n.opts.NodeID,
		Role:    string(n.strategy.Role()),
		Height:  tail.Index,
		Length:  n.chain.Length(),
		TailAge: tail.Age().Seconds(),
	}
}

// SubmitTransaction implements p2p.Handler: a point-to-point submission
// from the gateway lands in the mempool and wakes the production loop.
func (n *Node) SubmitTransaction(_ context.Context, tx chain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	n.seen.FirstSeen(tx.ID)
	if n.pool.Add(tx) {
		slog.Debug("Transaction queued", "node", n.opts.NodeID, "tx", tx.ID)
	}
	return nil
}

// Run drives the discovery, heartbeat and production loops until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.refreshPeers(ctx)
	// A node joining after blocks exist must catch up before it can
	// accept gossip; every BLOCK_FOUND above tail+1 would be a gap.
	n.syncChain(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); n.discoveryLoop(ctx) }()
	go func() { defer wg.Done(); n.heartbeatLoop(ctx) }()
	go func() { defer wg.Done(); n.productionLoop(ctx) }()
	wg.Wait()
	return ctx.Err()
}

func (n *Node) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(n.opts.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshPeers(ctx)
		}
	}
}

func (n *Node) refreshPeers(ctx context.Context) {
	if n.opts.Source == nil {
		return
	}
	peers, err := n.opts.Source.Peers(ctx)
	if err != nil {
		slog.Warn("Peer discovery failed", "node", n.opts.NodeID, "error", err)
		return
	}
	n.broadcaster.UpdatePeers(peers)
}

// syncChain fetches peer chains and appends every validated block above
// the local tail. Peers are tried until one of them brings this replica
// forward; the first unreachable or diverging peer is skipped.
func (n *Node) syncChain(ctx context.Context) {
	if !n.syncMu.TryLock() {
		return
	}
	defer n.syncMu.Unlock()

	for _, peer := range n.broadcaster.Peers() {
		blocks, err := n.broadcaster.FetchChain(ctx, peer.Addr())
		if err != nil {
			slog.Debug("Chain fetch failed", "node", n.opts.NodeID, "peer", peer.NodeID, "error", err)
			continue
		}
		n.adoptBlocks(blocks, peer.NodeID)
	}
}

func (n *Node) adoptBlocks(blocks []*chain.Block, from string) {
	for _, block := range blocks {
		if block.Index <= n.chain.Height() {
			continue
		}
		if err := n.strategy.Validate(block, n.chain.Tail()); err != nil {
			slog.Warn("Rejecting block during sync", "node", n.opts.NodeID,
				"height", block.Index, "from", from, "reason", err)
			return
		}
		if err := n.chain.Append(block); err != nil {
			slog.Debug("Dropping block during sync", "node", n.opts.NodeID,
				"height", block.Index, "reason", err)
			return
		}
		n.seen.FirstSeen(block.HashHex())
		n.pool.MarkCommitted(block.TxIDs())
		blocksAccepted.Inc()
		slog.Info("Block adopted from peer", "node", n.opts.NodeID,
			"height", block.Index, "hash", block.HashHex(), "from", from)
	}
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(n.opts.HeartbeatInterval)
	defer ticker.Stop()

	n.heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.heartbeat(ctx)
		}
	}
}

// heartbeat announces liveness. With a registry the node refreshes its
// row; in static-seed mode it pings its peers instead, since no shared
// store tracks last_seen.
func (n *Node) heartbeat(ctx context.Context) {
	if n.opts.Registry == nil {
		n.pingPeers(ctx)
		return
	}
	entry := registry.PeerEntry{
		NodeID: n.opts.NodeID,
		Host:   n.opts.Host,
		Port:   n.opts.Port,
		Role:   string(n.strategy.Role()),
	}
	if err := n.opts.Registry.Upsert(ctx, entry); err != nil {
		slog.Warn("Heartbeat failed", "node", n.opts.NodeID, "error", err)
		return
	}
	if _, err := n.opts.Registry.MarkStale(ctx, n.opts.StaleAfter); err != nil {
		slog.Warn("Stale sweep failed", "node", n.opts.NodeID, "error", err)
	}
}

func (n *Node) pingPeers(ctx context.Context) {
	env, err := gossip.NewEnvelope(gossip.KindPing, n.opts.NodeID, nil)
	if err != nil {
		return
	}
	n.broadcaster.Broadcast(ctx, env, "")
}

func (n *Node) productionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.pool.Wake():
		}
		for n.pool.Len() > 0 && ctx.Err() == nil {
			n.produceOnce(ctx)
		}
	}
}

// produceOnce snapshots the mempool, runs one candidate search and, on
// success, appends, commits and gossips the block.
func (n *Node) produceOnce(ctx context.Context) {
	payload := n.pool.Snapshot()
	if len(payload) == 0 {
		return
	}
	tail := n.chain.Tail()
	height := tail.Index + 1

	searchCtx := n.beginProduction(ctx, height)
	defer n.endProduction()

	block, err := n.strategy.ProduceCandidate(searchCtx, tail, payload)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Info("Candidate search cancelled", "node", n.opts.NodeID, "height", height)
		return
	case errors.Is(err, consensus.ErrUnauthorizedSigner):
		slog.Error("Block production not permitted", "node", n.opts.NodeID, "error", err)
		// Drain so the loop does not spin on a pool this node can never
		// commit.
		n.pool.MarkCommitted(txIDs(payload))
		return
	default:
		slog.Error("Candidate search failed", "node", n.opts.NodeID, "error", err)
		return
	}

	if err := n.chain.Append(block); err != nil {
		// A peer's block for this height landed while the search was
		// finishing. First valid wins; the local candidate is discarded.
		slog.Info("Discarding local candidate, height already filled",
			"node", n.opts.NodeID, "height", height)
		return
	}

	n.pool.MarkCommitted(block.TxIDs())
	blocksProduced.WithLabelValues(string(n.strategy.Role())).Inc()
	slog.Info("Block produced", "node", n.opts.NodeID, "height", block.Index,
		"hash", block.HashHex(), "txs", len(block.Payload))

	n.seen.FirstSeen(block.HashHex())
	env, err := gossip.NewEnvelope(gossip.KindBlockFound, n.opts.NodeID, block)
	if err != nil {
		slog.Error("Failed to build BLOCK_FOUND envelope", "error", err)
		return
	}
	n.broadcaster.Broadcast(ctx, env, "")

	if n.gateway != nil {
		if err := n.gateway.notifyConfirmation(ctx, block); err != nil {
			slog.Error("Failed to notify gateway", "node", n.opts.NodeID, "error", err)
		}
	}
}

func (n *Node) beginProduction(ctx context.Context, height uint64) context.Context {
	searchCtx, cancel := context.WithCancel(ctx)
	n.production.Lock()
	n.production.cancel = cancel
	n.production.height = height
	n.production.Unlock()
	return searchCtx
}

func (n *Node) endProduction() {
	n.production.Lock()
	if n.production.cancel != nil {
		n.production.cancel()
		n.production.cancel = nil
	}
	n.production.Unlock()
}

// cancelProductionAt interrupts an in-flight candidate search for the
// given height, if any.
func (n *Node) cancelProductionAt(height uint64) {
	n.production.Lock()
	defer n.production.Unlock()
	if n.production.cancel != nil && n.production.height == height {
		n.production.cancel()
		n.production.cancel = nil
	}
}

func txIDs(txs []chain.Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}
