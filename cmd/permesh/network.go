package permesh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/permesh/permesh/internal/config"
	"github.com/permesh/permesh/internal/consensus"
	"github.com/permesh/permesh/internal/gateway"
	"github.com/permesh/permesh/internal/ledger"
	"github.com/permesh/permesh/internal/node"
	"github.com/permesh/permesh/internal/p2p"
	"github.com/permesh/permesh/internal/registry"
)

var NetworkCmd = &cobra.Command{
	Use:   "network",
	Short: "Run a simulated network in one process",
	Long:  `Spin up a gateway plus a set of nodes sharing an in-memory rendezvous store and ledger. Useful for demos and local experiments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bound here rather than in init; see NodeCmd.
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind network flags: %w", err)
		}
		networkConfig := config.LoadNetworkConfigFromCLI()
		if err := networkConfig.Validate(); err != nil {
			return fmt.Errorf("invalid network configuration: %w", err)
		}
		slog.Debug("Command-line arguments", "networkConfig", networkConfig)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		handleInterrupt(cancel)

		return runNetwork(ctx, networkConfig)
	},
}

func init() {
	NetworkCmd.Flags().Int("pow-nodes", 3, "number of PoW nodes")
	NetworkCmd.Flags().Int("poa-nodes", 0, "number of PoA authority nodes")
	NetworkCmd.Flags().Uint("difficulty", 2, "PoW difficulty (leading zero hex digits)")
	NetworkCmd.Flags().String("gateway-listen", ":8080", "gateway listen address")
	NetworkCmd.Flags().Duration("confirmation-timeout", gateway.DefaultConfirmationTimeout, "bounded wait for a block confirmation")
	NetworkCmd.Flags().Duration("heartbeat-interval", 0, "registry heartbeat interval")
	NetworkCmd.Flags().Duration("discovery-interval", 0, "peer discovery interval")
}

func runNetwork(ctx context.Context, cfg config.NetworkConfig) error {
	reg := registry.NewMemoryStore()
	store := ledger.NewMemoryStore()

	coord, err := gateway.NewCoordinator(ctx, gateway.Options{
		Registry:            reg,
		Ledger:              store,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	gatewayAddr, err := gateway.NewServer(cfg.GatewayListen, coord).Start(ctx)
	if err != nil {
		return err
	}
	slog.Info("Gateway started", "addr", gatewayAddr)

	strategies, err := buildNetworkStrategies(cfg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for id, strategy := range strategies {
		n, err := node.New(node.Options{
			NodeID:            id,
			Strategy:          strategy,
			Source:            &p2p.RegistrySource{Store: reg, SelfID: id},
			Registry:          reg,
			GatewayURL:        "http://" + gatewayAddr,
			HeartbeatInterval: cfg.HeartbeatInterval,
			DiscoveryInterval: cfg.DiscoveryInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to create node %s: %w", id, err)
		}

		addr, err := p2p.NewServer("127.0.0.1:0", n).Start(ctx)
		if err != nil {
			return err
		}
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("failed to parse node address %q: %w", addr, err)
		}
		port, _ := strconv.Atoi(portStr)

		if err := reg.Upsert(ctx, registry.PeerEntry{
			NodeID: id,
			Host:   host,
			Port:   port,
			Role:   string(strategy.Role()),
		}); err != nil {
			return fmt.Errorf("failed to register node %s: %w", id, err)
		}

		slog.Info("Node started", "node", id, "role", strategy.Role(), "addr", addr)
		g.Go(func() error { return n.Run(ctx) })
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildNetworkStrategies creates one strategy per node id. PoA networks
// share a generated authority set covering every node.
func buildNetworkStrategies(cfg config.NetworkConfig) (map[string]consensus.Strategy, error) {
	strategies := make(map[string]consensus.Strategy)

	for i := 0; i < cfg.PowNodes; i++ {
		id := fmt.Sprintf("pow-%d", i)
		strategies[id] = consensus.NewProofOfWork(id, cfg.Difficulty)
	}

	if cfg.PoaNodes > 0 {
		authorities := make(consensus.AuthoritySet, cfg.PoaNodes)
		keys := make(map[string]ed25519.PrivateKey, cfg.PoaNodes)
		for i := 0; i < cfg.PoaNodes; i++ {
			id := fmt.Sprintf("poa-%d", i)
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("failed to generate key for %s: %w", id, err)
			}
			authorities[id] = pub
			keys[id] = priv
			slog.Debug("Generated authority key", "node", id, "pub", hex.EncodeToString(pub))
		}
		for id, key := range keys {
			strategies[id] = consensus.NewProofOfAuthority(id, key, authorities)
		}
	}

	return strategies, nil
}
