package permesh_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/permesh/permesh/cmd/permesh"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	_, err = root.ExecuteC()
	return buf.String(), err
}

// Subcommands reuse flag names like psql and listen. Each command binds
// its own flags at run time, so a flag supplied to one subcommand must be
// visible to it even though another subcommand declares the same name.
func TestSubcommandFlagsAreNotShadowed(t *testing.T) {
	t.Run("GatewayReadsOwnPsqlFlag", func(t *testing.T) {
		// Validation passes and the command proceeds to the (unreachable)
		// database, so the failure is a connection error, not the missing
		// connection string.
		_, err := executeCommand(permesh.RootCmd, "gateway",
			"--psql", "postgres://127.0.0.1:1/permesh", "--listen", ":0")
		assert.Error(t, err)
		assert.NotContains(t, err.Error(), "psql connection string is required")
	})

	t.Run("NetworkReadsOwnNodeCounts", func(t *testing.T) {
		_, err := executeCommand(permesh.RootCmd, "network",
			"--pow-nodes", "0", "--poa-nodes", "0")
		assert.Error(t, err)
		assert.ErrorContains(t, err, "at least one node is required")
	})
}

func TestRootCmd(t *testing.T) {
	// Show help
	output, err := executeCommand(permesh.RootCmd)
	assert.NoError(t, err)
	assert.Contains(t, output, "permesh simulates a small permissioned blockchain network")

	// Test invalid logLevel
	_, err = executeCommand(permesh.RootCmd, "version", "--logLevel", "invalid")
	assert.Error(t, err)
	assert.ErrorContains(t, err, "invalid log level: invalid. Valid log levels are: debug|error|info|warn")
}
