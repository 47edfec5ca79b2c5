package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timeline/internal/store"
)

func TestTestCommand_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sequence.yaml", passingScenario)
	writeFile(t, dir, "soft-stop.yaml", softStopScenario)

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sequence")
	assert.Contains(t, out, "✓ soft-stop")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sequence.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)
	writeFile(t, dir, "broken.yaml", "name: [unterminated\n")

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ sequence")
	assert.Contains(t, out, "✗ wrong-result")
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sequence.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "seq*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "wrong-result")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sequence.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	resp, _ := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_NotFound(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_UpdateRequiresGolden(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir(), "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Golden(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	golden := filepath.Join(dir, "golden")
	writeFile(t, scenarios, "sequence.yaml", passingScenario)

	// Missing golden file fails.
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--golden", golden)
	require.Error(t, err)

	// --update writes it.
	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--golden", golden, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(golden, "sequence.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# scenario: sequence")

	// And the next run matches.
	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--golden", golden)
	require.NoError(t, err)

	// A changed golden file is reported.
	require.NoError(t, os.WriteFile(filepath.Join(golden, "sequence.golden"), []byte("stale\n"), 0o644))
	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_RecordsToDatabase(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	writeFile(t, scenarios, "sequence.yaml", passingScenario)
	writeFile(t, scenarios, "soft-stop.yaml", softStopScenario)
	dbPath := filepath.Join(dir, "runs.db")

	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "sequence", runs[0].Scenario)
	assert.Equal(t, "soft-stop", runs[1].Scenario)
}
