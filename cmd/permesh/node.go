package permesh

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/permesh/permesh/internal/config"
	"github.com/permesh/permesh/internal/consensus"
	"github.com/permesh/permesh/internal/ledger"
	"github.com/permesh/permesh/internal/node"
	"github.com/permesh/permesh/internal/p2p"
	"github.com/permesh/permesh/internal/registry"
)

var NodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run one blockchain node",
	Long:  `Run a single node: chain replica, mempool, consensus strategy, peer server and discovery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Subcommands share flag names (listen, psql, intervals), so the
		// viper binding happens here, not in init, to keep the executing
		// command's flags authoritative.
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind node flags: %w", err)
		}
		nodeConfig := config.LoadNodeConfigFromCLI()
		if err := nodeConfig.Validate(); err != nil {
			return fmt.Errorf("invalid node configuration: %w", err)
		}
		slog.Debug("Command-line arguments", "nodeConfig", nodeConfig)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		handleInterrupt(cancel)

		return runNode(ctx, nodeConfig)
	},
}

func init() {
	NodeCmd.Flags().String("node-id", "", "unique node identifier")
	NodeCmd.Flags().String("listen", ":9100", "peer listen address")
	NodeCmd.Flags().String("advertise-host", "127.0.0.1", "host advertised to peers")
	NodeCmd.Flags().Int("advertise-port", 9100, "port advertised to peers")
	NodeCmd.Flags().String("role", "pow", "consensus role (pow|poa)")
	NodeCmd.Flags().Uint("difficulty", 2, "PoW difficulty (leading zero hex digits)")
	NodeCmd.Flags().StringSlice("authority", nil, "authorized PoA signer as signerID=hexPubKey (repeatable)")
	NodeCmd.Flags().String("signer-key", "", "hex-encoded ed25519 seed for PoA signing")
	NodeCmd.Flags().String("gateway-url", "", "gateway base URL for block confirmations")
	NodeCmd.Flags().String("psql", "", "PostgreSQL connection string for the rendezvous store")
	NodeCmd.Flags().StringSlice("seed", nil, "static peer as nodeID@host:port (repeatable, replaces registry discovery)")
	NodeCmd.Flags().Duration("heartbeat-interval", 0, "registry heartbeat interval")
	NodeCmd.Flags().Duration("discovery-interval", 0, "peer discovery interval")
	NodeCmd.Flags().Int("seen-cache-size", 0, "bound of the seen-message cache")
}

func runNode(ctx context.Context, cfg config.NodeConfig) error {
	strategy, err := buildStrategy(cfg)
	if err != nil {
		return err
	}

	var (
		source p2p.PeerSource
		reg    registry.Store
	)
	if cfg.Psql != "" {
		store, err := ledger.NewPostgresStore(cfg.Psql, 0)
		if err != nil {
			return fmt.Errorf("failed to open rendezvous store: %w", err)
		}
		defer store.Close()

		reg = registry.NewPostgresStore(store.Pool())
		source = &p2p.RegistrySource{Store: reg, SelfID: cfg.NodeID}
	} else {
		entries, err := parseSeeds(cfg.Seeds)
		if err != nil {
			return err
		}
		source = &p2p.StaticSource{Entries: entries}
	}

	n, err := node.New(node.Options{
		NodeID:            cfg.NodeID,
		Strategy:          strategy,
		Host:              cfg.Host,
		Port:              cfg.Port,
		Source:            source,
		Registry:          reg,
		GatewayURL:        cfg.GatewayURL,
		SeenCacheSize:     cfg.SeenCacheSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DiscoveryInterval: cfg.DiscoveryInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	server := p2p.NewServer(cfg.Listen, n)
	addr, err := server.Start(ctx)
	if err != nil {
		return err
	}
	slog.Info("Node started", "node", cfg.NodeID, "role", cfg.Role, "addr", addr)

	if err := n.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func buildStrategy(cfg config.NodeConfig) (consensus.Strategy, error) {
	switch cfg.Role {
	case "pow":
		return consensus.NewProofOfWork(cfg.NodeID, cfg.Difficulty), nil
	case "poa":
		seed, err := hex.DecodeString(cfg.SignerKey)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signer-key must be a %d-byte hex seed", ed25519.SeedSize)
		}
		authorities, err := consensus.ParseAuthoritySet(cfg.Authorities)
		if err != nil {
			return nil, fmt.Errorf("invalid authority set: %w", err)
		}
		return consensus.NewProofOfAuthority(cfg.NodeID, ed25519.NewKeyFromSeed(seed), authorities), nil
	default:
		return nil, fmt.Errorf("invalid role: %s", cfg.Role)
	}
}

func parseSeeds(seeds []string) ([]registry.PeerEntry, error) {
	entries := make([]registry.PeerEntry, 0, len(seeds))
	for _, seed := range seeds {
		id, addr, ok := strings.Cut(seed, "@")
		if !ok {
			return nil, fmt.Errorf("invalid seed %q: expected nodeID@host:port", seed)
		}
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid seed address %q: %w", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid seed port %q: %w", portStr, err)
		}
		entries = append(entries, registry.PeerEntry{
			NodeID: id,
			Host:   host,
			Port:   port,
			Status: registry.StatusActive,
		})
	}
	return entries, nil
}

// handleInterrupt handles interrupt signals for graceful shutdown.
func handleInterrupt(cancel context.CancelFunc) {
	// Handle interrupt signals for graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		slog.Info("Received interrupt signal, shutting down...")
		cancel()
	}()
}
