package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// NetworkConfig configures the in-process simulated network.
type NetworkConfig struct {
	PowNodes            int
	PoaNodes            int
	Difficulty          uint
	GatewayListen       string
	ConfirmationTimeout time.Duration
	HeartbeatInterval   time.Duration
	DiscoveryInterval   time.Duration
}

func (c NetworkConfig) Validate() error {
	if c.PowNodes < 0 || c.PoaNodes < 0 {
		return fmt.Errorf("node counts must not be negative")
	}
	if c.PowNodes+c.PoaNodes == 0 {
		return fmt.Errorf("at least one node is required")
	}
	if c.PowNodes > 0 && c.PoaNodes > 0 {
		return fmt.Errorf("mixed pow/poa networks are not supported; nodes must share one validation rule")
	}
	return nil
}

func LoadNetworkConfigFromCLI() NetworkConfig {
	return NetworkConfig{
		PowNodes:            viper.GetInt("pow-nodes"),
		PoaNodes:            viper.GetInt("poa-nodes"),
		Difficulty:          viper.GetUint("difficulty"),
		GatewayListen:       viper.GetString("gateway-listen"),
		ConfirmationTimeout: viper.GetDuration("confirmation-timeout"),
		HeartbeatInterval:   viper.GetDuration("heartbeat-interval"),
		DiscoveryInterval:   viper.GetDuration("discovery-interval"),
	}
}
