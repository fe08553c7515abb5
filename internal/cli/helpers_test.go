package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const programsDir = "../../testdata/programs"

func programFile(name string) string {
	return filepath.Join(programsDir, name)
}

// execute runs cmd with args and returns what it wrote to stdout and
// stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// rawResponse is CLIResponse with its payload left undecoded, so traces
// keep their key order.
type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
	RunID  string          `json:"run_id"`
}

// decodeResponse parses a single JSON response line.
func decodeResponse(t *testing.T, out string) rawResponse {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// decodeData decodes a response's payload into v.
func decodeData(t *testing.T, resp rawResponse, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v), string(resp.Data))
}

func textOpts() *RootOptions {
	return &RootOptions{Format: "text"}
}

func jsonOpts() *RootOptions {
	return &RootOptions{Format: "json"}
}
