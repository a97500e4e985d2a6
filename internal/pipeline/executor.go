package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Observer is notified after every stage reaches a terminal state.
type Observer interface {
	StageFinished(meta StageMetadata)
}

// Executor runs a Plan sequentially in its resolved order.
type Executor struct {
	plan     *Plan
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

// NewExecutor constructs an executor for a resolved plan.
func NewExecutor(plan *Plan, logger zerolog.Logger) *Executor {
	return &Executor{
		plan:   plan,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
	}
}

// WithObserver registers an observer for stage completions.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// Result is the outcome of one run. Outputs hold only completed stages.
type Result struct {
	order   []string
	outputs map[string]any
	meta    map[string]StageMetadata
}

// Get returns the memoized output of a completed stage.
func (r *Result) Get(name string) (any, bool) {
	v, ok := r.outputs[name]
	return v, ok
}

// Stages returns metadata for every finished stage in execution order.
func (r *Result) Stages() []StageMetadata {
	out := make([]StageMetadata, 0, len(r.order))
	for _, name := range r.order {
		if m, ok := r.meta[name]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Stage returns the metadata of a single stage.
func (r *Result) Stage(name string) (StageMetadata, bool) {
	m, ok := r.meta[name]
	return m, ok
}

// Executed lists the stages whose compute function was invoked, in order.
func (r *Result) Executed() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if st := r.meta[name].Status; st == StatusCompleted || st == StatusFailed {
			out = append(out, name)
		}
	}
	return out
}

// Failed returns metadata of the stages that failed.
func (r *Result) Failed() []StageMetadata {
	return r.filter(StatusFailed)
}

// Skipped returns metadata of the stages that were not executed.
func (r *Result) Skipped() []StageMetadata {
	return r.filter(StatusSkipped)
}

// OK reports whether every stage completed.
func (r *Result) OK() bool {
	for _, m := range r.meta {
		if m.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (r *Result) filter(status Status) []StageMetadata {
	out := make([]StageMetadata, 0)
	for _, name := range r.order {
		if m := r.meta[name]; m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// Run executes every reachable stage once. A failing stage skips its transitive
// dependents and leaves unrelated branches running. The only error returned is
// a *NoDataError, in which case the partial result is still returned.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		order:   make([]string, 0, e.plan.Len()),
		outputs: make(map[string]any, e.plan.Len()),
		meta:    make(map[string]StageMetadata, e.plan.Len()),
	}
	snapshot := func() []StageMetadata { return res.Stages() }

	var fatal error
	for pos, idx := range e.plan.order {
		stage := e.plan.stages[idx]
		res.order = append(res.order, stage.Name)

		if fatal != nil {
			e.finish(res, StageMetadata{Name: stage.Name, Status: StatusSkipped, Count: -1, Err: fatal})
			continue
		}

		if cause, blocked := blockedBy(res, stage); blocked {
			e.finish(res, StageMetadata{Name: stage.Name, Status: StatusSkipped, Count: -1, SkippedBecause: cause})
			continue
		}

		in := Inputs{stage: stage.Name, deps: make(map[string]any, len(stage.DependsOn)), metadata: snapshot}
		for _, dep := range stage.DependsOn {
			in.deps[dep] = res.outputs[dep]
		}

		started := e.now()
		e.logger.Debug().Str("stage", stage.Name).Msg("stage started")
		out, err := runStage(ctx, stage, in)
		meta := StageMetadata{Name: stage.Name, Started: started, Duration: e.now().Sub(started), Count: -1}

		if err != nil {
			meta.Status = StatusFailed
			meta.Err = &StageExecutionError{Stage: stage.Name, Err: err}
			e.finish(res, meta)
			continue
		}

		meta.Status = StatusCompleted
		meta.Count = countOf(out)
		res.outputs[stage.Name] = out
		e.finish(res, meta)

		if pos == 0 && isEmpty(out) {
			fatal = &NoDataError{Stage: stage.Name}
			e.logger.Error().Str("stage", stage.Name).Msg("first stage produced no data; aborting run")
		}
	}

	return res, fatal
}

func (e *Executor) finish(res *Result, meta StageMetadata) {
	res.meta[meta.Name] = meta

	switch meta.Status {
	case StatusCompleted:
		e.logger.Info().Str("stage", meta.Name).Dur("duration", meta.Duration).Int("count", meta.Count).Msg("stage completed")
	case StatusFailed:
		e.logger.Error().Err(meta.Err).Str("stage", meta.Name).Dur("duration", meta.Duration).Msg("stage failed")
	case StatusSkipped:
		ev := e.logger.Warn().Str("stage", meta.Name)
		if meta.SkippedBecause != "" {
			ev = ev.Str("failed_dependency", meta.SkippedBecause)
		}
		if meta.Err != nil {
			ev = ev.Err(meta.Err)
		}
		ev.Msg("stage skipped")
	}

	if e.observer != nil {
		e.observer.StageFinished(meta)
	}
}

// blockedBy reports whether a dependency did not complete, naming the stage that
// originally failed.
func blockedBy(res *Result, stage Stage) (string, bool) {
	for _, dep := range stage.DependsOn {
		m := res.meta[dep]
		switch m.Status {
		case StatusCompleted:
			continue
		case StatusSkipped:
			if m.SkippedBecause != "" {
				return m.SkippedBecause, true
			}
			return dep, true
		default:
			return dep, true
		}
	}
	return "", false
}

func runStage(ctx context.Context, stage Stage, in Inputs) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Compute(ctx, in)
}
