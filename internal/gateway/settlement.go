package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// SettlementNotice is the payload forwarded to the external settlement
// service when a transaction confirms.
type SettlementNotice struct {
	TxID      string `json:"tx_id"`
	BlockHash string `json:"block_hash"`
	Index     uint64 `json:"index"`
}

// SettlementNotifier forwards confirmations to the off-chain settlement
// service. Notifications may be retried, so implementations must be
// idempotent on block_hash plus tx_id.
type SettlementNotifier interface {
	Notify(ctx context.Context, notice SettlementNotice) error
}

// HTTPSettlementNotifier posts notices to a settlement endpoint with
// exponential backoff, deduplicating by block_hash+tx_id across retries
// of the inbound confirmation.
type HTTPSettlementNotifier struct {
	url    string
	client *resty.Client

	mu   sync.Mutex
	sent map[string]struct{}
}

func NewHTTPSettlementNotifier(url string) *HTTPSettlementNotifier {
	return &HTTPSettlementNotifier{
		url: url,
		client: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("Content-Type", "application/json"),
		sent: make(map[string]struct{}),
	}
}

func (n *HTTPSettlementNotifier) Notify(ctx context.Context, notice SettlementNotice) error {
	key := notice.BlockHash + "|" + notice.TxID

	// Reserve the key before sending so concurrent redeliveries of the
	// same confirmation cannot both pass the check. A failed send
	// releases the reservation for the next retry.
	n.mu.Lock()
	if _, ok := n.sent[key]; ok {
		n.mu.Unlock()
		return nil
	}
	n.sent[key] = struct{}{}
	n.mu.Unlock()

	operation := func() error {
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(notice).
			Post(n.url)
		if err != nil {
			return fmt.Errorf("could not reach settlement service: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("settlement service rejected notice: %s", resp.Status())
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(30*time.Second),
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
	)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		n.mu.Lock()
		delete(n.sent, key)
		n.mu.Unlock()
		return err
	}
	return nil
}

// NoopSettlementNotifier logs and discards notices. Used when no
// settlement endpoint is configured.
type NoopSettlementNotifier struct{}

func (NoopSettlementNotifier) Notify(_ context.Context, notice SettlementNotice) error {
	slog.Debug("Settlement notice dropped, no endpoint configured",
		"tx", notice.TxID, "block", notice.BlockHash)
	return nil
}
