package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permesh",
		Subsystem: "node",
		Name:      "blocks_produced_total",
		Help:      "Blocks produced locally, by consensus role",
	}, []string{"role"})

	blocksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "permesh",
		Subsystem: "node",
		Name:      "blocks_accepted_total",
		Help:      "Peer blocks validated and appended",
	})

	blocksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "permesh",
		Subsystem: "node",
		Name:      "blocks_rejected_total",
		Help:      "Peer blocks dropped by validation",
	})

	gossipMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permesh",
		Subsystem: "node",
		Name:      "gossip_messages_total",
		Help:      "Inbound gossip envelopes, by type",
	}, []string{"type"})
)
