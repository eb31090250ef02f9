package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig configures the RPC gateway process.
type GatewayConfig struct {
	Listen              string
	Psql                string
	SettlementURL       string
	ConfirmationTimeout time.Duration
	MaxConns            uint

	EnablePrometheus bool
	PrometheusAddr   string
}

func (c GatewayConfig) Validate() error {
	if c.Psql == "" {
		return fmt.Errorf("a psql connection string is required")
	}
	if c.ConfirmationTimeout < 0 {
		return fmt.Errorf("confirmation-timeout must not be negative")
	}
	return nil
}

func LoadGatewayConfigFromCLI() GatewayConfig {
	return GatewayConfig{
		Listen:              viper.GetString("listen"),
		Psql:                viper.GetString("psql"),
		SettlementURL:       viper.GetString("settlement-url"),
		ConfirmationTimeout: viper.GetDuration("confirmation-timeout"),
		MaxConns:            viper.GetUint("max-conns"),
		EnablePrometheus:    viper.GetBool("enable-prometheus"),
		PrometheusAddr:      viper.GetString("prometheus-addr"),
	}
}
