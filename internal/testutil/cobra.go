// Package testutil holds shared test helpers.
package testutil

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// Execute runs a cobra command and returns whatever it printed to stdout.
// Commands that write with fmt.Println bypass the cobra output writers, so
// stdout itself is redirected through a pipe for the duration of the run.
func Execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	captured := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		captured <- buf.String()
	}()

	cmd.SetArgs(args)
	err = cmd.Execute()

	w.Close()
	os.Stdout = old

	return strings.TrimSpace(<-captured), err
}
