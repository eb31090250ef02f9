package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/permesh/permesh/internal/config"
)

func TestNodeConfigValidate(t *testing.T) {
	valid := config.NodeConfig{NodeID: "node-1", Role: "pow", Seeds: []string{"node-2@127.0.0.1:9001"}}
	assert.NoError(t, valid.Validate())

	t.Run("MissingNodeID", func(t *testing.T) {
		c := valid
		c.NodeID = ""
		assert.ErrorContains(t, c.Validate(), "node-id is required")
	})

	t.Run("InvalidRole", func(t *testing.T) {
		c := valid
		c.Role = "pos"
		assert.ErrorContains(t, c.Validate(), "invalid role")
	})

	t.Run("PoaNeedsSignerKey", func(t *testing.T) {
		c := valid
		c.Role = "poa"
		c.Authorities = []string{"node-1=00"}
		assert.ErrorContains(t, c.Validate(), "signer-key is required")
	})

	t.Run("PoaNeedsAuthorities", func(t *testing.T) {
		c := valid
		c.Role = "poa"
		c.SignerKey = "00"
		assert.ErrorContains(t, c.Validate(), "at least one authority")
	})

	t.Run("NeedsDiscoverySource", func(t *testing.T) {
		c := valid
		c.Seeds = nil
		assert.ErrorContains(t, c.Validate(), "psql connection string or a seed list")
	})
}

func TestGatewayConfigValidate(t *testing.T) {
	valid := config.GatewayConfig{Psql: "postgres://localhost/permesh"}
	assert.NoError(t, valid.Validate())

	t.Run("MissingPsql", func(t *testing.T) {
		c := valid
		c.Psql = ""
		assert.ErrorContains(t, c.Validate(), "psql connection string is required")
	})

	t.Run("ConfirmationTimeout", func(t *testing.T) {
		c := valid
		c.ConfirmationTimeout = -time.Second
		assert.ErrorContains(t, c.Validate(), "must not be negative")

		// Zero means the coordinator default applies.
		c.ConfirmationTimeout = 0
		assert.NoError(t, c.Validate())
	})
}

func TestNetworkConfigValidate(t *testing.T) {
	assert.NoError(t, config.NetworkConfig{PowNodes: 3}.Validate())
	assert.NoError(t, config.NetworkConfig{PoaNodes: 2}.Validate())

	assert.ErrorContains(t, config.NetworkConfig{}.Validate(), "at least one node")
	assert.ErrorContains(t, config.NetworkConfig{PowNodes: -1}.Validate(), "must not be negative")
	assert.ErrorContains(t, config.NetworkConfig{PowNodes: 1, PoaNodes: 1}.Validate(), "mixed pow/poa")
}
