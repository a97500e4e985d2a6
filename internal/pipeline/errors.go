package pipeline

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle found while resolving stages.
type CycleError struct {
	// Path lists stage names in dependency order and repeats the first name at the end.
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "pipeline: cycle detected"
	}
	return "pipeline: cycle detected: " + strings.Join(e.Path, " -> ")
}

// UnknownDependencyError reports a declared dependency with no matching stage.
type UnknownDependencyError struct {
	Stage      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("pipeline: stage %q depends on unknown stage %q", e.Stage, e.Dependency)
}

// InvalidStageError reports a malformed stage declaration.
type InvalidStageError struct {
	Stage string
	Msg   string
}

func (e *InvalidStageError) Error() string {
	if e.Stage == "" {
		return "pipeline: invalid stage: " + e.Msg
	}
	return fmt.Sprintf("pipeline: invalid stage %q: %s", e.Stage, e.Msg)
}

// StageExecutionError wraps the failure of a single stage.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error { return e.Err }

// NoDataError is returned when the first stage of a run yields an empty result.
type NoDataError struct {
	Stage string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("pipeline: stage %q produced no data", e.Stage)
}
