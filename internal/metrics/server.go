// Package metrics exposes ledger-level Prometheus collectors over HTTP.
package metrics

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sqlcollectors "github.com/permesh/permesh/internal/metrics/collectors/sql"
)

// CreateMetricsServer registers the SQL collectors against the ledger
// database and starts serving /metrics on addr. The caller owns the
// returned server and shuts it down.
func CreateMetricsServer(db *sql.DB, addr string) (*http.Server, error) {
	collectors, err := sqlcollectors.DefaultSqlRegistry.CreateSqlCollectors(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQL collectors: %w", err)
	}

	registry := prometheus.NewRegistry()
	if err := registerCollectors(registry, collectors); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server stopped unexpectedly", "error", err)
		}
	}()

	slog.Info("Metrics server started", "addr", addr)
	return server, nil
}

func registerCollectors(registry *prometheus.Registry, collectors []prometheus.Collector) error {
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}
