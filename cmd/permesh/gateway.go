package permesh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/permesh/permesh/internal/config"
	"github.com/permesh/permesh/internal/gateway"
	"github.com/permesh/permesh/internal/ledger"
	"github.com/permesh/permesh/internal/metrics"
	"github.com/permesh/permesh/internal/registry"
)

var GatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the RPC gateway",
	Long:  `Run the external-facing gateway: accept transactions, dispatch them to nodes, track tickets and relay confirmations to the ledger and the settlement service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bound here rather than in init; see NodeCmd.
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind gateway flags: %w", err)
		}
		gatewayConfig := config.LoadGatewayConfigFromCLI()
		if err := gatewayConfig.Validate(); err != nil {
			return fmt.Errorf("invalid gateway configuration: %w", err)
		}
		slog.Debug("Command-line arguments", "gatewayConfig", gatewayConfig)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		handleInterrupt(cancel)

		return runGateway(ctx, gatewayConfig)
	},
}

func init() {
	GatewayCmd.Flags().String("listen", ":8080", "gateway listen address")
	GatewayCmd.Flags().String("psql", "", "PostgreSQL connection string for the ledger store")
	GatewayCmd.Flags().String("settlement-url", "", "settlement service endpoint for confirmation notices")
	GatewayCmd.Flags().Duration("confirmation-timeout", gateway.DefaultConfirmationTimeout, "bounded wait for a block confirmation")
	GatewayCmd.Flags().Uint("max-conns", 0, "maximum PostgreSQL connections (0 = driver default)")
	GatewayCmd.Flags().Bool("enable-prometheus", false, "enable Prometheus metrics server")
	GatewayCmd.Flags().String("prometheus-addr", "0.0.0.0:2112", "address and port of the Prometheus metrics server")
}

func runGateway(ctx context.Context, cfg config.GatewayConfig) error {
	store, err := ledger.NewPostgresStore(cfg.Psql, cfg.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to open ledger store: %w", err)
	}
	defer store.Close()

	var notifier gateway.SettlementNotifier = gateway.NoopSettlementNotifier{}
	if cfg.SettlementURL != "" {
		notifier = gateway.NewHTTPSettlementNotifier(cfg.SettlementURL)
	}

	coord, err := gateway.NewCoordinator(ctx, gateway.Options{
		Registry:            registry.NewPostgresStore(store.Pool()),
		Ledger:              store,
		Notifier:            notifier,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	if cfg.EnablePrometheus {
		db := stdlib.OpenDBFromPool(store.Pool())
		metricsServer, err := metrics.CreateMetricsServer(db, cfg.PrometheusAddr)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer metricsServer.Close()
	}

	server := gateway.NewServer(cfg.Listen, coord)
	addr, err := server.Start(ctx)
	if err != nil {
		return err
	}
	slog.Info("Gateway started", "addr", addr, "confirmation_timeout", cfg.ConfirmationTimeout)

	<-ctx.Done()
	return nil
}
