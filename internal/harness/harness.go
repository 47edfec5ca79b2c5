package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/timeline/internal/store"
	"github.com/roach88/timeline/internal/timeline"
	"github.com/roach88/timeline/internal/tree"
)

// DefaultHorizon bounds runs that set no explicit until.
const DefaultHorizon = 1_000_000

// Harness executes scenarios against a fresh timeline.
type Harness struct {
	logger   *slog.Logger
	observer timeline.Observer
	store    *store.Store
	ids      store.RunIDGenerator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger used by the harness and the timeline.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithObserver adds an observer that receives every trace event live.
func WithObserver(o timeline.Observer) Option {
	return func(h *Harness) {
		h.observer = o
	}
}

// WithStore records the run and its trace in st. Run IDs come from ids,
// or UUIDv7 when ids is nil.
func WithStore(st *store.Store, ids store.RunIDGenerator) Option {
	return func(h *Harness) {
		h.store = st
		if ids == nil {
			ids = store.UUIDv7Generator{}
		}
		h.ids = ids
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load and validate the tree document, then build the root
//  2. Schedule the root and run the first tick at time zero
//  3. Apply each step at its virtual time, advancing tick by tick
//  4. Run to until, or until idle
//  5. Evaluate assertions against the trace and final state
//
// The returned error reports failures to execute at all (bad tree,
// storage errors). Step and assertion failures are recorded in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (result *Result, err error) {
	doc, err := scenario.Document()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	if errs := tree.Validate(doc); len(errs) > 0 {
		return nil, fmt.Errorf("invalid tree: %w", errors.Join(errs...))
	}

	hash, err := tree.Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("hash tree: %w", err)
	}

	env := tree.NewEnv()
	for name, value := range scenario.Flags {
		env.SetFlag(name, value)
	}
	builder := tree.NewBuilder(doc, env)

	root, err := builder.BuildRoot()
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}

	result = NewResult(scenario.Name)
	result.TreeHash = hash

	observers := timeline.MultiObserver{result}
	if h.observer != nil {
		observers = append(observers, h.observer)
	}

	var rec *store.Recorder
	if h.store != nil {
		source, err := scenario.Portable()
		if err != nil {
			return nil, err
		}
		result.RunID = h.ids.Generate()
		if err := h.store.CreateRun(ctx, store.Run{
			ID:       result.RunID,
			Scenario: scenario.Name,
			TreeHash: hash,
			Source:   string(source),
		}); err != nil {
			return nil, err
		}
		rec = h.store.Recorder(ctx, result.RunID)
		observers = append(observers, rec)
	}

	tlOpts := []timeline.Option{
		timeline.WithLogger(h.logger),
		timeline.WithObserver(observers),
	}
	if scenario.MaxSteps > 0 {
		tlOpts = append(tlOpts, timeline.WithMaxSteps(scenario.MaxSteps))
	}
	tl := timeline.New(tlOpts...)

	h.logger.Info("scenario starting",
		"scenario", scenario.Name,
		"root", doc.Entry(),
		"tree_hash", hash,
		"run_id", result.RunID,
	)

	rootHandle := tl.Schedule(root)
	runErr := h.drive(ctx, tl, builder, scenario, result)

	res, done := rootHandle.Result()
	result.Done = done
	result.Value = res
	result.EndedAt = tl.Now()
	result.Counters = env.Counters()
	for _, ev := range result.Trace {
		if ev.Handle == rootHandle.ID() && ev.Kind == timeline.EventTeardown {
			result.FinishedAt = ev.At
		}
	}

	if rec != nil {
		if err := h.store.FinishRun(ctx, result.RunID, done, res, result.EndedAt, runErr); err != nil {
			return nil, err
		}
		if err := rec.Err(); err != nil {
			return nil, fmt.Errorf("record trace: %w", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, env) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"done", result.Done,
		"result", result.Value,
		"events", len(result.Trace),
	)
	return result, nil
}

// drive runs the timeline through every step and then to the end of the
// scenario. Contract violations raised by element code are returned as
// errors.
func (h *Harness) drive(ctx context.Context, tl *timeline.Timeline, builder *tree.Builder, scenario *Scenario, result *Result) (err error) {
	defer timeline.Recover(&err)

	// The first tick runs everything scheduled at time zero, so steps at
	// time zero see the root already started.
	if err := h.simulate(tl, 0, result); err != nil {
		return err
	}

	for i, step := range scenario.Steps {
		if err := h.advance(ctx, tl, time.Duration(step.At), scenario.tick(), result); err != nil {
			return err
		}
		if msg := h.apply(tl, builder, step); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}
	}

	if scenario.Until != nil {
		return h.advance(ctx, tl, time.Duration(*scenario.Until), scenario.tick(), result)
	}
	if err := tl.RunUntilIdle(ctx, DefaultHorizon); err != nil {
		return fmt.Errorf("run until idle: %w", err)
	}
	return nil
}

// advance simulates tick by tick until virtual time reaches target.
func (h *Harness) advance(ctx context.Context, tl *timeline.Timeline, target time.Duration, tick int64, result *Result) error {
	for tl.Now() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := tl.Now() + time.Duration(tick)
		if next > target {
			next = target
		}
		if err := h.simulate(tl, next, result); err != nil {
			return err
		}
	}
	return nil
}

// simulate runs one tick. Budget exhaustion is counted, not fatal: the
// queued work continues on the next tick.
func (h *Harness) simulate(tl *timeline.Timeline, until time.Duration, result *Result) error {
	err := tl.Simulate(until)
	if timeline.IsStepsExceededError(err) {
		result.BudgetExhausted++
		h.logger.Warn("tick step budget exhausted", "at", until, "error", err)
		return nil
	}
	return err
}

// apply performs one step and returns a failure message, or "".
func (h *Harness) apply(tl *timeline.Timeline, builder *tree.Builder, step Step) string {
	if step.SetFlag != "" {
		builder.Env().SetFlag(step.SetFlag, step.Value)
		h.logger.Debug("flag set", "at", tl.Now(), "flag", step.SetFlag, "value", step.Value)
		return ""
	}

	name := step.SoftStop
	if name == "" {
		name = step.HardStop
	}
	e, ok := builder.Element(name)
	if !ok {
		return fmt.Sprintf("no element named %q", name)
	}
	handle := timeline.HandleOf(e)
	if handle == nil {
		return fmt.Sprintf("element %q is not attached at %d", name, tl.Now())
	}

	if step.HardStop != "" {
		h.logger.Debug("hard stop", "at", tl.Now(), "element", name, "handle", handle.ID())
		tl.HardStop(handle)
		return ""
	}

	accepted := tl.SoftStop(handle)
	h.logger.Debug("soft stop", "at", tl.Now(), "element", name, "handle", handle.ID(), "accepted", accepted)
	if step.Expect != nil && *step.Expect != accepted {
		return fmt.Sprintf("soft_stop %q: expected accepted=%t, got %t", name, *step.Expect, accepted)
	}
	return ""
}
