package node

import (
	"context"
	"log/slog"

	"github.com/permesh/permesh/internal/gossip"
)

// HandleGossip implements p2p.Handler. Validation happens before any
// re-broadcast; invalid messages are dropped and logged, never propagated.
func (n *Node) HandleGossip(ctx context.Context, env gossip.Envelope) {
	gossipMessages.WithLabelValues(string(env.Type)).Inc()

	switch env.Type {
	case gossip.KindBlockFound:
		n.handleBlockFound(ctx, env)
	case gossip.KindNewTransaction:
		n.handleNewTransaction(ctx, env)
	case gossip.KindPing:
		n.handlePing(ctx, env)
	case gossip.KindPong:
		slog.Debug("Pong received", "node", n.opts.NodeID, "from", env.SenderID)
	case gossip.KindNodeList:
		n.handleNodeList(env)
	default:
		slog.Warn("Unknown gossip type dropped", "node", n.opts.NodeID, "type", env.Type)
	}
}

func (n *Node) handleBlockFound(ctx context.Context, env gossip.Envelope) {
	block, err := env.Block()
	if err != nil {
		slog.Warn("Malformed BLOCK_FOUND dropped", "node", n.opts.NodeID, "error", err)
		return
	}

	// Bound propagation: a hash this node already handled, accepted or
	// rejected, is never processed or relayed again.
	if !n.seen.FirstSeen(block.HashHex()) {
		return
	}

	tail := n.chain.Tail()
	if block.Index > tail.Index+1 {
		// This replica is behind; the announced block cannot link to the
		// local tail. Pull the missing range from peers instead.
		slog.Info("Block ahead of local tail, syncing chain", "node", n.opts.NodeID,
			"height", block.Index, "tail", tail.Index, "from", env.SenderID)
		n.syncChain(ctx)
		return
	}
	if err := n.strategy.Validate(block, tail); err != nil {
		blocksRejected.Inc()
		slog.Warn("Rejecting invalid block", "node", n.opts.NodeID,
			"height", block.Index, "from", env.SenderID, "reason", err)
		return
	}
	if err := n.chain.Append(block); err != nil {
		slog.Debug("Dropping block", "node", n.opts.NodeID,
			"height", block.Index, "reason", err)
		return
	}

	// First valid block wins this height: stop any local search for it.
	n.cancelProductionAt(block.Index)
	n.pool.MarkCommitted(block.TxIDs())
	blocksAccepted.Inc()
	slog.Info("Block accepted", "node", n.opts.NodeID, "height", block.Index,
		"hash", block.HashHex(), "from", env.SenderID)

	relay := gossip.Envelope{
		Type:      env.Type,
		SenderID:  n.opts.NodeID,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}
	n.broadcaster.Broadcast(ctx, relay, env.SenderID)
}

func (n *Node) handleNewTransaction(ctx context.Context, env gossip.Envelope) {
	tx, err := env.Transaction()
	if err != nil {
		slog.Warn("Malformed NEW_TRANSACTION dropped", "node", n.opts.NodeID, "error", err)
		return
	}
	if !n.seen.FirstSeen(tx.ID) {
		return
	}
	if !n.pool.Add(tx) {
		return
	}

	relay := gossip.Envelope{
		Type:      env.Type,
		SenderID:  n.opts.NodeID,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}
	n.broadcaster.Broadcast(ctx, relay, env.SenderID)
}

func (n *Node) handlePing(ctx context.Context, env gossip.Envelope) {
	pong, err := gossip.NewEnvelope(gossip.KindPong, n.opts.NodeID, nil)
	if err != nil {
		return
	}
	for _, peer := range n.broadcaster.Peers() {
		if peer.NodeID != env.SenderID {
			continue
		}
		if err := n.broadcaster.Send(ctx, peer.Addr(), pong); err != nil {
			slog.Debug("Pong delivery failed", "node", n.opts.NodeID, "to", env.SenderID, "error", err)
		}
		return
	}
}

// handleNodeList merges advertised peers into the local snapshot. It backs
// the seed-node discovery mode, where no shared registry exists.
func (n *Node) handleNodeList(env gossip.Envelope) {
	entries, err := env.NodeList()
	if err != nil {
		slog.Warn("Malformed NODE_LIST dropped", "node", n.opts.NodeID, "error", err)
		return
	}

	current := n.broadcaster.Peers()
	known := make(map[string]struct{}, len(current))
	for _, p := range current {
		known[p.NodeID] = struct{}{}
	}
	for _, entry := range entries {
		if entry.NodeID == n.opts.NodeID {
			continue
		}
		if _, ok := known[entry.NodeID]; ok {
			continue
		}
		current = append(current, entry)
	}
	n.broadcaster.UpdatePeers(current)
}
