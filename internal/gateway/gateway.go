// Package gateway is the external-facing RPC coordinator. It accepts
// transactions, fans them out point-to-point to known node endpoints,
// tracks each submission with a ticket, and relays block confirmations to
// the ledger store and the settlement service.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/ledger"
	"github.com/permesh/permesh/internal/registry"
)

// DefaultConfirmationTimeout bounds the wait for a winning block.
const DefaultConfirmationTimeout = 10 * time.Minute

// Confirmation is the inbound payload a node posts when it produces an
// accepted block. It carries the full block so the gateway can persist it.
type Confirmation struct {
	TxIDs     []string     `json:"tx_ids"`
	BlockHash string       `json:"block_hash"`
	Index     uint64       `json:"index"`
	Block     *chain.Block `json:"block"`
}

// Options configures the coordinator.
type Options struct {
	Registry            registry.Store
	Ledger              ledger.Store
	Notifier            SettlementNotifier
	ConfirmationTimeout time.Duration
	NodeTimeout         time.Duration
}

// Coordinator owns the ticket store and the node fan-out.
type Coordinator struct {
	opts    Options
	tickets *ticketStore
	client  *resty.Client

	// baseCtx scopes the background fan-out and timers; submissions must
	// not block on the inbound request context.
	baseCtx context.Context
}

func NewCoordinator(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("node registry is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = NoopSettlementNotifier{}
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = 5 * time.Second
	}

	return &Coordinator{
		opts:    opts,
		tickets: newTicketStore(),
		client: resty.New().
			SetTimeout(opts.NodeTimeout).
			SetHeader("Content-Type", "application/json"),
		baseCtx: ctx,
	}, nil
}

// SubmitTransaction creates a ticket, fans the transaction out to every
// known node endpoint in the background and returns the tx id immediately.
// It never blocks on mining.
func (c *Coordinator) SubmitTransaction(sender, receiver string, amount int64, data string) (string, error) {
	if sender == "" || receiver == "" {
		return "", fmt.Errorf("sender and receiver are required")
	}

	tx := chain.NewTransaction(sender, receiver, amount, data)
	c.tickets.create(tx.ID)
	slog.Info("Transaction submitted", "tx", tx.ID, "sender", sender, "receiver", receiver)

	// The timeout timer holds no lock while waiting; the transition is a
	// no-op if the ticket went terminal first.
	time.AfterFunc(c.opts.ConfirmationTimeout, func() {
		if c.tickets.transition(tx.ID, StatusTimeout,
			fmt.Sprintf("no confirmation within %s", c.opts.ConfirmationTimeout)) {
			ticketsFinished.WithLabelValues(string(StatusTimeout)).Inc()
			slog.Warn("Ticket timed out", "tx", tx.ID)
		}
	})

	go c.fanOut(tx)
	return tx.ID, nil
}

// GetStatus returns the current ticket for a submitted transaction.
func (c *Coordinator) GetStatus(txID string) (Ticket, bool) {
	return c.tickets.get(txID)
}

// fanOut delivers the transaction to each active node endpoint directly,
// not by flooding.
func (c *Coordinator) fanOut(tx chain.Transaction) {
	ctx, cancel := context.WithTimeout(c.baseCtx, c.opts.NodeTimeout+time.Second)
	defer cancel()

	c.tickets.transition(tx.ID, StatusQueued, "dispatching to nodes")

	nodes, err := c.opts.Registry.Active(ctx, "")
	if err != nil {
		c.tickets.transition(tx.ID, StatusError, errors.WithMessage(err, "node discovery failed").Error())
		ticketsFinished.WithLabelValues(string(StatusError)).Inc()
		return
	}
	if len(nodes) == 0 {
		c.tickets.transition(tx.ID, StatusFailed, "no known node endpoints")
		ticketsFinished.WithLabelValues(string(StatusFailed)).Inc()
		return
	}

	var delivered int
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan struct{}, len(nodes))
	for _, n := range nodes {
		g.Go(func() error {
			if err := c.sendToNode(gctx, n, tx); err != nil {
				slog.Warn("Node unreachable, skipping", "node", n.NodeID, "tx", tx.ID, "error", err)
				return nil
			}
			results <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for range results {
		delivered++
	}

	if delivered == 0 {
		c.tickets.transition(tx.ID, StatusFailed, "no reachable node endpoints")
		ticketsFinished.WithLabelValues(string(StatusFailed)).Inc()
		return
	}
	c.tickets.transition(tx.ID, StatusMining,
		fmt.Sprintf("delivered to %d of %d nodes", delivered, len(nodes)))
}

func (c *Coordinator) sendToNode(ctx context.Context, n registry.PeerEntry, tx chain.Transaction) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(tx).
		Post(fmt.Sprintf("http://%s/transactions", n.Addr()))
	if err != nil {
		return fmt.Errorf("failed to reach node %s: %w", n.NodeID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("node %s rejected transaction: %s", n.NodeID, resp.Status())
	}
	return nil
}

// HandleConfirmation processes an inbound block confirmation from a node:
// persist the block and its transactions, confirm the affected tickets and
// forward settlement notices. Redelivered confirmations are harmless; the
// ledger write is idempotent on block hash and the ticket transitions are
// no-ops once terminal.
func (c *Coordinator) HandleConfirmation(ctx context.Context, conf Confirmation) error {
	if conf.Block == nil {
		return fmt.Errorf("confirmation for block %s carries no block", conf.BlockHash)
	}

	if err := c.opts.Ledger.WriteBlockWithTransactions(ctx, conf.Block); err != nil {
		for _, txID := range conf.TxIDs {
			if c.tickets.transition(txID, StatusError, "ledger write failed") {
				ticketsFinished.WithLabelValues(string(StatusError)).Inc()
			}
		}
		return errors.WithMessage(err, "failed to persist confirmed block")
	}

	for _, txID := range conf.TxIDs {
		if c.tickets.transition(txID, StatusConfirmed,
			fmt.Sprintf("included in block %d (%s)", conf.Index, conf.BlockHash)) {
			ticketsFinished.WithLabelValues(string(StatusConfirmed)).Inc()
		}

		notice := SettlementNotice{TxID: txID, BlockHash: conf.BlockHash, Index: conf.Index}
		if err := c.opts.Notifier.Notify(ctx, notice); err != nil {
			// Settlement is external; a failed notice does not unwind the
			// confirmation. The notifier retries internally.
			slog.Error("Settlement notification failed", "tx", txID, "error", err)
		}
	}

	slog.Info("Block confirmed", "block", conf.BlockHash, "height", conf.Index, "txs", len(conf.TxIDs))
	return nil
}
