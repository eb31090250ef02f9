package node

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/gateway"
)

type gatewayClient struct {
	url    string
	client *resty.Client
}

func newGatewayClient(url string) *gatewayClient {
	return &gatewayClient{
		url: url,
		client: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

// notifyConfirmation delivers the confirmation with retries. The gateway
// treats the write as idempotent, so redelivery is safe.
func (g *gatewayClient) notifyConfirmation(ctx context.Context, block *chain.Block) error {
	conf := gateway.Confirmation{
		TxIDs:     block.TxIDs(),
		BlockHash: block.HashHex(),
		Index:     block.Index,
		Block:     block,
	}

	operation := func() error {
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(conf).
			Post(g.url + "/confirmations")
		if err != nil {
			return fmt.Errorf("could not reach gateway: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("gateway rejected confirmation: %s", resp.Status())
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(newConfirmationBackoff(), ctx))
}

func newConfirmationBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(30*time.Second),
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
