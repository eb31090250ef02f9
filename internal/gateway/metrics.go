package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticketsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "permesh",
	Subsystem: "gateway",
	Name:      "tickets_finished_total",
	Help:      "Tickets that reached a terminal status, by status",
}, []string{"status"})
