package pipeline

import (
	"context"
	"fmt"
	"time"
)

// ComputeFunc produces a stage's output from its dependencies' outputs.
// Implementations must treat every value obtained from Inputs as read-only.
type ComputeFunc func(ctx context.Context, in Inputs) (any, error)

// Stage declares a named computation and the stages whose outputs it consumes.
type Stage struct {
	Name      string
	DependsOn []string
	Compute   ComputeFunc
}

// Status is the terminal state of a stage within a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageMetadata describes what happened to one stage during a run.
type StageMetadata struct {
	Name     string
	Status   Status
	Started  time.Time
	Duration time.Duration
	// Count is the output size for outputs exposing Len() int, -1 otherwise.
	Count int
	Err   error
	// SkippedBecause names the failed stage that caused a skip.
	SkippedBecause string
}

// Source exposes named stage outputs.
type Source interface {
	Get(name string) (any, bool)
}

// Inputs is the read-only view a stage gets of its declared dependencies.
type Inputs struct {
	stage    string
	deps     map[string]any
	metadata func() []StageMetadata
}

// Stage names the stage these inputs were prepared for.
func (in Inputs) Stage() string { return in.stage }

// Get returns the output of a declared dependency.
// Undeclared stages are never visible, even if they already ran.
func (in Inputs) Get(name string) (any, bool) {
	v, ok := in.deps[name]
	return v, ok
}

// Metadata returns the metadata of every stage that has finished so far in the run.
func (in Inputs) Metadata() []StageMetadata {
	if in.metadata == nil {
		return nil
	}
	return in.metadata()
}

// Get fetches a named output from src and asserts its type.
func Get[T any](src Source, name string) (T, error) {
	var zero T
	raw, ok := src.Get(name)
	if !ok {
		return zero, fmt.Errorf("output %q not available", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("output %q has type %T, want %T", name, raw, zero)
	}
	return typed, nil
}

type lener interface {
	Len() int
}

func countOf(v any) int {
	if l, ok := v.(lener); ok {
		return l.Len()
	}
	return -1
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if l, ok := v.(lener); ok {
		return l.Len() == 0
	}
	return false
}
