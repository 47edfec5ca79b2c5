package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/timeline/internal/timeline"
)

// CreateRun inserts a new run record.
// Unlike events, a duplicate run ID is an error: IDs are generated fresh for
// every execution.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("create run: empty run ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, tree_hash, source)
		VALUES (?, ?, ?, ?)
	`,
		run.ID,
		run.Scenario,
		run.TreeHash,
		run.Source,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records how a run ended. runErr, if non-nil, marks the run as
// aborted.
func (s *Store) FinishRun(ctx context.Context, id string, done, result bool, at time.Duration, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished = 1, done = ?, result = ?, finished_at = ?, error = ?
		WHERE id = ?
	`,
		boolToInt(done),
		boolToInt(result),
		int64(at),
		msg,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteEvent appends one trace event to a run.
// Uses ON CONFLICT DO NOTHING so that writing the same (run, seq) twice is a
// no-op.
//
// Note: The run must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, ev timeline.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, at, kind, handle, parent, element, type, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		int64(ev.Seq),
		int64(ev.At),
		string(ev.Kind),
		int64(ev.Handle),
		int64(ev.Parent),
		ev.Element,
		ev.Type,
		boolToInt(ev.Result),
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteEvents appends a batch of events in a single transaction.
func (s *Store) WriteEvents(ctx context.Context, runID string, events []timeline.TraceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(run_id, seq, at, kind, handle, parent, element, type, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			runID,
			int64(ev.Seq),
			int64(ev.At),
			string(ev.Kind),
			int64(ev.Handle),
			int64(ev.Parent),
			ev.Element,
			ev.Type,
			boolToInt(ev.Result),
		); err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

// Recorder is a timeline observer that writes every event to a run.
//
// Observe cannot return an error, so the first write failure is kept and
// later events are dropped. Check Err once the run is over.
type Recorder struct {
	store *Store
	ctx   context.Context
	runID string
	count int
	err   error
}

// Recorder returns an observer that appends events to runID.
func (s *Store) Recorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{store: s, ctx: ctx, runID: runID}
}

// Observe implements timeline.Observer.
func (r *Recorder) Observe(ev timeline.TraceEvent) {
	if r.err != nil {
		return
	}
	if err := r.store.WriteEvent(r.ctx, r.runID, ev); err != nil {
		r.err = err
		return
	}
	r.count++
}

// Count returns the number of events written.
func (r *Recorder) Count() int { return r.count }

// Err returns the first write error, if any.
func (r *Recorder) Err() error { return r.err }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
