package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// NodeConfig configures one blockchain node process.
type NodeConfig struct {
	NodeID string
	Listen string
	Host   string
	Port   int

	Role        string
	Difficulty  uint
	Authorities []string
	SignerKey   string

	GatewayURL string
	Psql       string
	Seeds      []string

	HeartbeatInterval time.Duration
	DiscoveryInterval time.Duration
	SeenCacheSize     int
}

func (c NodeConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node-id is required")
	}
	switch c.Role {
	case "pow":
	case "poa":
		if c.SignerKey == "" {
			return fmt.Errorf("signer-key is required for role poa")
		}
		if len(c.Authorities) == 0 {
			return fmt.Errorf("at least one authority is required for role poa")
		}
	default:
		return fmt.Errorf("invalid role: %s. Valid roles are: poa|pow", c.Role)
	}
	if c.Psql == "" && len(c.Seeds) == 0 {
		return fmt.Errorf("either a psql connection string or a seed list is required for discovery")
	}
	return nil
}

func LoadNodeConfigFromCLI() NodeConfig {
	return NodeConfig{
		NodeID:            viper.GetString("node-id"),
		Listen:            viper.GetString("listen"),
		Host:              viper.GetString("advertise-host"),
		Port:              viper.GetInt("advertise-port"),
		Role:              viper.GetString("role"),
		Difficulty:        viper.GetUint("difficulty"),
		Authorities:       viper.GetStringSlice("authority"),
		SignerKey:         viper.GetString("signer-key"),
		GatewayURL:        viper.GetString("gateway-url"),
		Psql:              viper.GetString("psql"),
		Seeds:             viper.GetStringSlice("seed"),
		HeartbeatInterval: viper.GetDuration("heartbeat-interval"),
		DiscoveryInterval: viper.GetDuration("discovery-interval"),
		SeenCacheSize:     viper.GetInt("seen-cache-size"),
	}
}
