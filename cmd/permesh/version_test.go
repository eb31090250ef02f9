package permesh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permesh/permesh/cmd/permesh"
	"github.com/permesh/permesh/internal/testutil"
)

func TestVersionCmd(t *testing.T) {
	out, err := testutil.Execute(t, permesh.RootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "permesh")
	assert.Contains(t, out, permesh.Version)
}
