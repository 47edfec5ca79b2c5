package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timeline/internal/harness"
	"github.com/roach88/timeline/internal/store"
	"github.com/roach88/timeline/internal/testutil"
)

const passingScenario = `name: sequence
description: children run in order
tree:
  main:
    kind: sequence
    name: main
    children:
      - {kind: function, name: greet}
      - {kind: sleep, name: nap, delay: 2}
assertions:
  - {type: result, result: true}
  - {type: finished_at, at: 2}
`

const failingScenario = `name: wrong-result
description: asserts the wrong root result
tree:
  main: {kind: function, name: main, result: true}
assertions:
  - {type: result, result: false}
`

const softStopScenario = `name: soft-stop
description: a soft stop wakes a soft sleep early
tree:
  main:
    kind: sequence
    name: main
    children:
      - {kind: soft_sleep, name: nap, delay: 10}
steps:
  - {at: 3, soft_stop: nap, expect: true}
assertions:
  - {type: result, result: false}
  - {type: finished_at, at: 3}
`

const validTree = `root: main
tree:
  main:
    kind: sequence
    name: main
    children:
      - {kind: function, name: greet}
      - {kind: sleep, name: nap, delay: 2}
`

const invalidTree = `root: main
tree:
  main:
    kind: teleport
`

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeResponse parses a JSON CLI response, keeping Data raw.
func decodeResponse(t *testing.T, out string) (CLIResponse, json.RawMessage) {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	return CLIResponse{Status: raw.Status, Error: raw.Error}, raw.Data
}

// recordRuns runs each scenario source against a fresh database with
// sequential run IDs and returns the database path.
func recordRuns(t *testing.T, sources ...string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ids := testutil.NewSequentialIDs("run")
	for _, src := range sources {
		scenario, err := harness.ParseScenario([]byte(src))
		require.NoError(t, err)
		_, err = harness.Run(context.Background(), scenario, harness.WithStore(st, ids))
		require.NoError(t, err)
	}
	return dbPath
}
