package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timeline/internal/store"
	"github.com/roach88/timeline/internal/timeline"
)

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found")
}

func TestReplayAllDeterministic(t *testing.T) {
	dbPath := recordRuns(t, passingScenario, softStopScenario, failingScenario)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ run-1 sequence")
	assert.Contains(t, out, "✓ run-2 soft-stop")
	assert.Contains(t, out, "✓ run-3 wrong-result")
	assert.Contains(t, out, "All 3 run(s) deterministic")
}

func TestReplaySingleRunJSON(t *testing.T) {
	dbPath := recordRuns(t, passingScenario, softStopScenario)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath, "run-2")
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)

	var result ReplayResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Runs, 1)
	r := result.Runs[0]
	assert.Equal(t, "soft-stop", r.Scenario)
	assert.True(t, r.Deterministic)
	assert.True(t, r.HashMatch)
	assert.Equal(t, r.Recorded, r.Replayed)
}

func TestReplayDetectsDivergence(t *testing.T) {
	dbPath := recordRuns(t, passingScenario)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	state, err := st.GetRunState(context.Background(), "run-1")
	require.NoError(t, err)
	require.NoError(t, st.WriteEvent(context.Background(), "run-1", timeline.TraceEvent{
		Seq:     state.LastSeq + 1,
		At:      99,
		Kind:    timeline.EventRun,
		Handle:  42,
		Element: "ghost",
		Type:    "function",
	}))
	st.Close()

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ run-1 sequence")
	assert.Contains(t, out, "replay ended, recorded trace has run ghost at 99")
}

func TestReplayDivergenceJSON(t *testing.T) {
	dbPath := recordRuns(t, passingScenario)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec("UPDATE runs SET tree_hash = 'stale' WHERE id = 'run-1'")
	require.NoError(t, err)
	st.Close()

	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.Error(t, err)

	resp, data := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNondeterminism, resp.Error.Code)

	var result ReplayResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.False(t, result.AllDeterministic)
	require.Len(t, result.Runs, 1)
	assert.False(t, result.Runs[0].HashMatch)
	assert.Empty(t, result.Runs[0].Divergence)
}

func TestReplayUnknownRun(t *testing.T) {
	dbPath := recordRuns(t, passingScenario)

	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayIncomplete(t *testing.T) {
	dbPath := recordRuns(t, passingScenario)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.CreateRun(context.Background(), store.Run{
		ID:       "crashed",
		Scenario: "sequence",
		TreeHash: "h",
		Source:   passingScenario,
	}))
	st.Close()

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--incomplete")
	require.NoError(t, err)
	assert.Contains(t, out, "crashed  sequence  0 events")
	assert.NotContains(t, out, "run-1")
}
