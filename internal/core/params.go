package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// paramsValidate is the validator instance for ingest parameters.
// Initialized in init() with custom validators.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
	_ = paramsValidate.RegisterValidation("timeofday", validateTimeOfDay)
}

// validateTimeOfDay accepts HH:MM[:SS[.fff]].
func validateTimeOfDay(fl validator.FieldLevel) bool {
	return ValidTimeOfDay(fl.Field().String())
}

// Params is the full per-meter parameter set for one ingest.
type Params struct {
	MeterID int64 `validate:"gt=0"`

	// TimeSort declares whether the source lists the oldest row first.
	TimeSort TimeSort `validate:"oneof=increasing decreasing"`

	// RepetitionFactor is the number of consecutive rows that encode the
	// same logical reading. Only every RepetitionFactor-th row is used.
	RepetitionFactor int `validate:"min=1"`

	// Cumulative sources report odometer values that must be differenced.
	Cumulative bool

	// CumulativeReset allows negative deltas that start inside ResetWindow.
	CumulativeReset bool
	ResetWindow     ResetWindow

	// ReadingGapTolerance is the allowed distance between one reading's end
	// and the next one's start.
	ReadingGapTolerance time.Duration `validate:"min=0"`

	// ReadingLengthTolerance is the allowed change in duration between
	// consecutive readings before a warning is logged.
	ReadingLengthTolerance time.Duration `validate:"min=0"`

	// EndOnly sources carry only the end of each interval.
	EndOnly bool

	// ShouldUpdate overwrites conflicting stored readings on commit.
	ShouldUpdate bool

	// Conditions is the optional post-processing validation policy.
	Conditions *ConditionSet

	// DiagnosticsLimit caps the diagnostics text (0 = default).
	DiagnosticsLimit int `validate:"min=0"`
}

// DefaultParams returns the parameters of a plain, non-cumulative meter.
func DefaultParams(meterID int64) Params {
	return Params{
		MeterID:          meterID,
		TimeSort:         TimeSortAscending,
		RepetitionFactor: 1,
		ResetWindow:      DefaultResetWindow(),
	}
}

// Validate rejects malformed parameters with a ConfigError before any row
// is processed.
func (p Params) Validate() error {
	var errs []string

	if err := paramsValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return configErrorf("%v", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	if p.CumulativeReset {
		if err := p.ResetWindow.Validate(); err != nil {
			errs = append(errs, err.(*Error).Msg)
		}
	}

	if p.Conditions != nil {
		errs = append(errs, p.Conditions.problems()...)
	}

	if len(errs) > 0 {
		return configErrorf("invalid parameters:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// problems lists inconsistencies inside a condition set.
func (c *ConditionSet) problems() []string {
	var errs []string
	if c.MinVal != nil && c.MaxVal != nil && *c.MinVal > *c.MaxVal {
		errs = append(errs, fmt.Sprintf("minVal (%g) must be <= maxVal (%g)", *c.MinVal, *c.MaxVal))
	}
	if c.MinDate != nil && c.MaxDate != nil && c.MinDate.After(*c.MaxDate) {
		errs = append(errs, fmt.Sprintf("minDate (%s) must not be after maxDate (%s)",
			c.MinDate.Format(time.RFC3339), c.MaxDate.Format(time.RFC3339)))
	}
	if c.IntervalThreshold != nil && *c.IntervalThreshold < 0 {
		errs = append(errs, "intervalThreshold must be non-negative")
	}
	if c.MaxErrorsReported != nil && *c.MaxErrorsReported < 1 {
		errs = append(errs, "maxErrors must be at least 1")
	}
	return errs
}
