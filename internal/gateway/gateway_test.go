package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/gateway"
	"github.com/permesh/permesh/internal/ledger"
	"github.com/permesh/permesh/internal/registry"
)

// stubNode is a fake node endpoint that records transaction deliveries.
type stubNode struct {
	srv      *httptest.Server
	received atomic.Int64
}

func newStubNode(t *testing.T, reg registry.Store, nodeID string) *stubNode {
	t.Helper()
	n := &stubNode{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, _ *http.Request) {
		n.received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)

	host, portStr, err := net.SplitHostPort(n.srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), registry.PeerEntry{
		NodeID: nodeID, Host: host, Port: port, Role: "pow",
	}))
	return n
}

func newCoordinator(t *testing.T, opts gateway.Options) *gateway.Coordinator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if opts.Registry == nil {
		opts.Registry = registry.NewMemoryStore()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewMemoryStore()
	}
	coord, err := gateway.NewCoordinator(ctx, opts)
	require.NoError(t, err)
	return coord
}

func confirmationFor(txID string) gateway.Confirmation {
	block := &chain.Block{
		Index:     1,
		Timestamp: time.Now().Unix(),
		PrevHash:  chain.NewGenesis().HashHex(),
		Hash:      "0a1b2c3d",
		MinerID:   "node-1",
		Payload: []chain.Transaction{{
			ID: txID, Sender: "alice", Receiver: "bob", Amount: 10, Status: chain.TxPending,
		}},
	}
	return gateway.Confirmation{
		TxIDs:     []string{txID},
		BlockHash: block.Hash,
		Index:     block.Index,
		Block:     block,
	}
}

func TestSubmitReturnsImmediatelyAndReachesMining(t *testing.T) {
	reg := registry.NewMemoryStore()
	node := newStubNode(t, reg, "node-1")
	coord := newCoordinator(t, gateway.Options{Registry: reg})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	ticket, ok := coord.GetStatus(txID)
	require.True(t, ok)
	assert.False(t, ticket.Status.Terminal())

	require.Eventually(t, func() bool {
		ticket, _ := coord.GetStatus(txID)
		return ticket.Status == gateway.StatusMining
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), node.received.Load())
}

func TestSubmitRequiresSenderAndReceiver(t *testing.T) {
	coord := newCoordinator(t, gateway.Options{})
	_, err := coord.SubmitTransaction("", "bob", 10, "")
	assert.Error(t, err)
}

func TestSubmitFailsWithNoKnownNodes(t *testing.T) {
	coord := newCoordinator(t, gateway.Options{})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ticket, _ := coord.GetStatus(txID)
		return ticket.Status == gateway.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitFailsWhenNoNodeIsReachable(t *testing.T) {
	reg := registry.NewMemoryStore()
	// Port 1 refuses connections.
	require.NoError(t, reg.Upsert(context.Background(), registry.PeerEntry{
		NodeID: "dead", Host: "127.0.0.1", Port: 1, Role: "pow",
	}))
	coord := newCoordinator(t, gateway.Options{Registry: reg, NodeTimeout: 500 * time.Millisecond})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ticket, _ := coord.GetStatus(txID)
		return ticket.Status == gateway.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
	ticket, _ := coord.GetStatus(txID)
	assert.Contains(t, ticket.Message, "no reachable")
}

func TestConfirmationConfirmsTicketAndPersistsBlock(t *testing.T) {
	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	store := ledger.NewMemoryStore()
	coord := newCoordinator(t, gateway.Options{Registry: reg, Ledger: store})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	conf := confirmationFor(txID)
	require.NoError(t, coord.HandleConfirmation(context.Background(), conf))

	ticket, ok := coord.GetStatus(txID)
	require.True(t, ok)
	assert.Equal(t, gateway.StatusConfirmed, ticket.Status)
	assert.Contains(t, ticket.Message, conf.BlockHash)

	stored, err := store.GetBlock(context.Background(), conf.BlockHash)
	require.NoError(t, err)
	require.NotNil(t, stored)

	tx, err := store.GetTransaction(context.Background(), txID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, chain.TxCommitted, tx.Status)
}

func TestConfirmationIsIdempotentOnRedelivery(t *testing.T) {
	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	store := ledger.NewMemoryStore()
	coord := newCoordinator(t, gateway.Options{Registry: reg, Ledger: store})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	conf := confirmationFor(txID)
	require.NoError(t, coord.HandleConfirmation(context.Background(), conf))
	require.NoError(t, coord.HandleConfirmation(context.Background(), conf))

	ticket, _ := coord.GetStatus(txID)
	assert.Equal(t, gateway.StatusConfirmed, ticket.Status)
}

func TestConfirmationWithoutBlockIsRejected(t *testing.T) {
	coord := newCoordinator(t, gateway.Options{})
	err := coord.HandleConfirmation(context.Background(), gateway.Confirmation{
		TxIDs: []string{"tx-1"}, BlockHash: "abc",
	})
	assert.Error(t, err)
}

// failingLedger rejects every write.
type failingLedger struct{ ledger.Store }

func (failingLedger) WriteBlockWithTransactions(context.Context, *chain.Block) error {
	return fmt.Errorf("disk full")
}

func TestConfirmationLedgerFailureMarksTicketError(t *testing.T) {
	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	coord := newCoordinator(t, gateway.Options{
		Registry: reg,
		Ledger:   failingLedger{ledger.NewMemoryStore()},
	})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	err = coord.HandleConfirmation(context.Background(), confirmationFor(txID))
	require.Error(t, err)

	ticket, _ := coord.GetStatus(txID)
	assert.Equal(t, gateway.StatusError, ticket.Status)
}

func TestTicketTimesOutWithoutConfirmation(t *testing.T) {
	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	coord := newCoordinator(t, gateway.Options{
		Registry:            reg,
		ConfirmationTimeout: 100 * time.Millisecond,
	})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ticket, _ := coord.GetStatus(txID)
		return ticket.Status == gateway.StatusTimeout
	}, 5*time.Second, 10*time.Millisecond)
	ticket, _ := coord.GetStatus(txID)
	assert.NotEmpty(t, ticket.Message)
}

func TestTimeoutDoesNotOverrideConfirmed(t *testing.T) {
	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	coord := newCoordinator(t, gateway.Options{
		Registry:            reg,
		ConfirmationTimeout: 200 * time.Millisecond,
	})

	txID, err := coord.SubmitTransaction("alice", "bob", 10, "")
	require.NoError(t, err)
	require.NoError(t, coord.HandleConfirmation(context.Background(), confirmationFor(txID)))

	time.Sleep(400 * time.Millisecond)
	ticket, _ := coord.GetStatus(txID)
	assert.Equal(t, gateway.StatusConfirmed, ticket.Status)
}

func TestHTTPSettlementNotifierDeduplicates(t *testing.T) {
	var hits atomic.Int64
	settlement := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer settlement.Close()

	notifier := gateway.NewHTTPSettlementNotifier(settlement.URL)
	notice := gateway.SettlementNotice{TxID: "tx-1", BlockHash: "abc", Index: 1}

	require.NoError(t, notifier.Notify(context.Background(), notice))
	require.NoError(t, notifier.Notify(context.Background(), notice))
	assert.Equal(t, int64(1), hits.Load())
}

func TestHTTPSettlementNotifierDeduplicatesConcurrentRedeliveries(t *testing.T) {
	var hits atomic.Int64
	settlement := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		// Hold the request open long enough for the second delivery to
		// hit the dedup check mid-send.
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer settlement.Close()

	notifier := gateway.NewHTTPSettlementNotifier(settlement.URL)
	notice := gateway.SettlementNotice{TxID: "tx-1", BlockHash: "abc", Index: 1}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, notifier.Notify(context.Background(), notice))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), hits.Load())
}

func TestHTTPSettlementNotifierRetriesAfterFailure(t *testing.T) {
	var healthy atomic.Bool
	var delivered atomic.Int64
	settlement := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer settlement.Close()

	notifier := gateway.NewHTTPSettlementNotifier(settlement.URL)
	notice := gateway.SettlementNotice{TxID: "tx-1", BlockHash: "abc", Index: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.Error(t, notifier.Notify(ctx, notice))

	// The failed attempt must not poison the dedup set; once the service
	// recovers, a redelivery of the same notice still goes out.
	healthy.Store(true)
	require.NoError(t, notifier.Notify(context.Background(), notice))
	assert.Equal(t, int64(1), delivered.Load())
}

func TestServerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewMemoryStore()
	newStubNode(t, reg, "node-1")
	coord := newCoordinator(t, gateway.Options{Registry: reg})

	addr, err := gateway.NewServer("127.0.0.1:0", coord).Start(ctx)
	require.NoError(t, err)
	base := "http://" + addr

	body, err := json.Marshal(gateway.SubmitRequest{Sender: "alice", Receiver: "bob", Amount: 10})
	require.NoError(t, err)
	resp, err := http.Post(base+"/transactions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted gateway.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.TxID)

	confBody, err := json.Marshal(confirmationFor(submitted.TxID))
	require.NoError(t, err)
	confResp, err := http.Post(base+"/confirmations", "application/json", bytes.NewReader(confBody))
	require.NoError(t, err)
	confResp.Body.Close()
	require.Equal(t, http.StatusOK, confResp.StatusCode)

	statusResp, err := http.Get(base + "/transactions/" + submitted.TxID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	require.Equal(t, http.StatusOK, statusResp.StatusCode)

	var status gateway.StatusResponse
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.Equal(t, string(gateway.StatusConfirmed), status.Status)

	unknown, err := http.Get(base + "/transactions/nope")
	require.NoError(t, err)
	unknown.Body.Close()
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}
