package storage

import (
	"time"

	"github.com/google/uuid"
)

// Run outcomes persisted in recap_runs.status.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusNoData  = "no_data"
	RunStatusFailed  = "failed"
)

// RunRecord summarises one pipeline execution.
type RunRecord struct {
	ID            uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	Tickers       int
	PriceRecords  int
	ReturnRecords int
	NewsItems     int
	QualityScore  *float64
	ChecksFailed  []string
	ReportPath    *string
	Error         *string
}

// StageRun is the archived metadata of one stage within a run.
type StageRun struct {
	RunID      uuid.UUID
	Position   int
	Name       string
	Status     string
	StartedAt  *time.Time
	DurationMS int64
	Records    *int
	Error      *string
}
