package store

import (
	"context"
	"fmt"
	"time"
)

// RunState summarises a run for recovery and replay.
type RunState struct {
	Run        Run
	EventCount int
	LastSeq    uint64
	LastAt     time.Duration // Virtual time of the last recorded event
}

// GetRunState returns the recorded state of a run.
func (s *Store) GetRunState(ctx context.Context, id string) (RunState, error) {
	run, err := s.ReadRun(ctx, id)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run}
	var lastSeq, lastAt int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(seq), 0), COALESCE(MAX(at), 0)
		FROM events
		WHERE run_id = ?
	`, id).Scan(&state.EventCount, &lastSeq, &lastAt)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state.LastSeq = uint64(lastSeq)
	state.LastAt = time.Duration(lastAt)
	return state, nil
}

// FindIncompleteRuns returns runs that never recorded a finish, for example
// because the process died mid-run. Results are ordered by creation.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]RunState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs
		WHERE finished = 0
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run ids: %w", err)
	}

	states := []RunState{}
	for _, id := range ids {
		state, err := s.GetRunState(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
