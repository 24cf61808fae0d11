package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxStarter opens the outer transaction used by the committer.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx (as a savepoint).
type TxStarter interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Database is what the Service needs from a connection pool.
type Database interface {
	DBTX
	TxStarter
}

// EpochSentinel marks a meter that has never stored a reading.
var EpochSentinel = time.Unix(0, 0).UTC()

// isEpoch reports whether t is the "no previous reading" sentinel.
func isEpoch(t time.Time) bool {
	return t.IsZero() || t.Equal(EpochSentinel)
}

// RawRow is one record exactly as read from the source.
type RawRow []string

// MappedCandidate is a row after the meter's RowMapper has interpreted it.
// TimeB is nil for sources that only carry the end of each interval.
type MappedCandidate struct {
	Value float64
	TimeA time.Time
	TimeB *time.Time
}

// RowMapper converts a raw row into a candidate reading.
// Implementations must be pure; they are called once per row in file order.
type RowMapper func(RawRow) (MappedCandidate, error)

// Reading is one accepted interval reading for a meter.
// StartTimestamp is always strictly before EndTimestamp.
type Reading struct {
	MeterID        int64     `json:"meterId"`
	Value          float64   `json:"reading"`
	StartTimestamp time.Time `json:"startTimestamp"`
	EndTimestamp   time.Time `json:"endTimestamp"`
}

// Duration returns the length of the reading interval.
func (r Reading) Duration() time.Duration {
	return r.EndTimestamp.Sub(r.StartTimestamp)
}

// MeterState is the per-meter bookkeeping persisted between uploads.
// Reading holds the last raw value for cumulative meters and the last net
// value otherwise.
type MeterState struct {
	Reading        float64
	StartTimestamp time.Time
	EndTimestamp   time.Time
}

// NewMeterState returns the state of a meter with no stored readings.
func NewMeterState() MeterState {
	return MeterState{StartTimestamp: EpochSentinel, EndTimestamp: EpochSentinel}
}

// TimeSort declares the chronological order of rows in the source.
type TimeSort string

const (
	TimeSortAscending  TimeSort = "increasing"
	TimeSortDescending TimeSort = "decreasing"
)

// CommitMode controls how conflicting readings are handled on insert.
type CommitMode int

const (
	InsertOrIgnore CommitMode = iota
	InsertOrUpdate
)

func (m CommitMode) String() string {
	switch m {
	case InsertOrUpdate:
		return "insert_or_update"
	default:
		return "insert_or_ignore"
	}
}

// CommitModeFor maps the caller's shouldUpdate flag to a CommitMode.
func CommitModeFor(shouldUpdate bool) CommitMode {
	if shouldUpdate {
		return InsertOrUpdate
	}
	return InsertOrIgnore
}

// ConditionSet is the post-processing validation policy for a meter.
// A nil field disables the corresponding check.
type ConditionSet struct {
	MinVal            *float64       `yaml:"minVal" json:"minVal,omitempty"`
	MaxVal            *float64       `yaml:"maxVal" json:"maxVal,omitempty"`
	MinDate           *time.Time     `yaml:"minDate" json:"minDate,omitempty"`
	MaxDate           *time.Time     `yaml:"maxDate" json:"maxDate,omitempty"`
	IntervalThreshold *time.Duration `yaml:"intervalThreshold" json:"intervalThreshold,omitempty"`
	MaxErrorsReported *int           `yaml:"maxErrors" json:"maxErrors,omitempty"`
}

// ProcessingOutcome is the write-once result of processing one upload.
type ProcessingOutcome struct {
	// Accepted holds the readings to commit, in chronological order.
	Accepted []Reading

	// AllAccepted is false if any row was dropped or the batch was rejected.
	AllAccepted bool

	// Diagnostics is the capped, human-readable log of warnings and drops.
	Diagnostics string

	// Rejected is true when the whole batch was discarded. Err then holds
	// the FatalBatchError or ValidationFailure that caused it.
	Rejected bool
	Err      error

	// State is the meter state to persist. Only meaningful when !Rejected.
	State MeterState

	// Processed counts logical rows visited; Dropped counts non-fatal drops.
	Processed int
	Dropped   int

	// Messages counts diagnostic messages produced; MessagesLost those that
	// did not fit under the diagnostics limit.
	Messages     int
	MessagesLost int
}
