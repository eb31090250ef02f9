package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/internal/chain"
	"github.com/permesh/permesh/internal/mempool"
)

func TestAddDeduplicates(t *testing.T) {
	p := mempool.New()
	tx := chain.NewTransaction("alice", "bob", 10, "")

	assert.True(t, p.Add(tx))
	assert.False(t, p.Add(tx))
	assert.Equal(t, 1, p.Len())
}

func TestAddWakesProductionLoop(t *testing.T) {
	p := mempool.New()
	p.Add(chain.NewTransaction("alice", "bob", 10, ""))

	select {
	case <-p.Wake():
	default:
		t.Fatal("expected wake signal after Add")
	}
}

func TestSnapshotPreservesArrivalOrder(t *testing.T) {
	p := mempool.New()
	a := chain.NewTransaction("alice", "bob", 1, "first")
	b := chain.NewTransaction("bob", "carol", 2, "second")
	p.Add(a)
	p.Add(b)

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a.ID, snap[0].ID)
	assert.Equal(t, b.ID, snap[1].ID)

	// Snapshot does not drain.
	assert.Equal(t, 2, p.Len())
}

func TestMarkCommittedRemoves(t *testing.T) {
	p := mempool.New()
	a := chain.NewTransaction("alice", "bob", 1, "")
	b := chain.NewTransaction("bob", "carol", 2, "")
	p.Add(a)
	p.Add(b)

	p.MarkCommitted([]string{a.ID})
	assert.Equal(t, 1, p.Len())

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, b.ID, snap[0].ID)
}
