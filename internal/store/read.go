package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timeline/internal/timeline"
)

// ReadRun returns a run by ID, or an error wrapping ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, tree_hash, source, finished, done, result, finished_at, error
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in the order they were created.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, tree_hash, source, finished, done, result, finished_at, error
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the trace of a run ordered by sequence number.
//
// Returns an empty slice (not nil) if the run recorded no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]timeline.TraceEvent, error) {
	return s.queryEvents(ctx, `
		SELECT seq, at, kind, handle, parent, element, type, result
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadElementEvents returns the events of one element in a run, optionally
// restricted to one kind. An empty kind matches every kind.
func (s *Store) ReadElementEvents(ctx context.Context, runID, element string, kind timeline.EventKind) ([]timeline.TraceEvent, error) {
	if kind == "" {
		return s.queryEvents(ctx, `
			SELECT seq, at, kind, handle, parent, element, type, result
			FROM events
			WHERE run_id = ? AND element = ?
			ORDER BY seq ASC
		`, runID, element)
	}
	return s.queryEvents(ctx, `
		SELECT seq, at, kind, handle, parent, element, type, result
		FROM events
		WHERE run_id = ? AND kind = ? AND element = ?
		ORDER BY seq ASC
	`, runID, string(kind), element)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]timeline.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []timeline.TraceEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		finished   int
		done       int
		result     int
		finishedAt int64
	)
	if err := row.Scan(
		&run.ID,
		&run.Scenario,
		&run.TreeHash,
		&run.Source,
		&finished,
		&done,
		&result,
		&finishedAt,
		&run.Error,
	); err != nil {
		return Run{}, err
	}
	run.Finished = finished != 0
	run.Done = done != 0
	run.Result = result != 0
	run.FinishedAt = time.Duration(finishedAt)
	return run, nil
}

func scanEvent(rows *sql.Rows) (timeline.TraceEvent, error) {
	var (
		ev     timeline.TraceEvent
		seq    int64
		at     int64
		kind   string
		handle int64
		parent int64
		result int
	)
	if err := rows.Scan(&seq, &at, &kind, &handle, &parent, &ev.Element, &ev.Type, &result); err != nil {
		return timeline.TraceEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Seq = uint64(seq)
	ev.At = time.Duration(at)
	ev.Kind = timeline.EventKind(kind)
	ev.Handle = uint64(handle)
	ev.Parent = uint64(parent)
	ev.Result = result != 0
	return ev, nil
}
