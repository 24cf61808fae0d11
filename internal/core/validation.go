package core

// validation.go is the batch validator: a post-pass over the accepted
// readings that checks them against a meter's ConditionSet.
//
// Three independent checks run, and all of them must pass:
//  1. Date bounds: every reading lies inside [MinDate, MaxDate]
//  2. Value bounds: every value lies inside [MinVal, MaxVal]
//  3. Interval regularity: start-to-start spacing stays within
//     IntervalThreshold of the spacing of the first pair
//
// MaxErrorsReported is a shared budget split evenly between the date and
// value checks. Each check stops reporting once its half is used up.

import (
	"fmt"
	"time"
)

// ValidateReadings runs every enabled check and reports whether all passed.
// Violations are written to d.
func ValidateReadings(readings []Reading, cs ConditionSet, d *Diagnostics) bool {
	budget := cs.checkBudget()

	datesOK := validateDates(readings, cs, budget, d)
	valuesOK := validateValues(readings, cs, budget, d)
	intervalOK := validateInterval(readings, cs, d)

	return datesOK && valuesOK && intervalOK
}

// checkBudget is the per-check error allowance; 0 means unlimited.
func (c ConditionSet) checkBudget() int {
	if c.MaxErrorsReported == nil {
		return 0
	}
	half := *c.MaxErrorsReported / 2
	if half < 1 {
		half = 1
	}
	return half
}

func validateDates(readings []Reading, cs ConditionSet, budget int, d *Diagnostics) bool {
	if cs.MinDate == nil && cs.MaxDate == nil {
		return true
	}

	errs := 0
	for i, r := range readings {
		switch {
		case cs.MinDate != nil && r.StartTimestamp.Before(*cs.MinDate):
			d.Addf("Reading #%d starts at %s which is before the earliest allowed date %s.",
				i+1, r.StartTimestamp.Format(timestampLayout), cs.MinDate.Format(timestampLayout))
		case cs.MaxDate != nil && r.EndTimestamp.After(*cs.MaxDate):
			d.Addf("Reading #%d ends at %s which is after the latest allowed date %s.",
				i+1, r.EndTimestamp.Format(timestampLayout), cs.MaxDate.Format(timestampLayout))
		default:
			continue
		}

		errs++
		if budget > 0 && errs >= budget {
			d.Addf("Date check stopped after %d errors.", errs)
			break
		}
	}
	return errs == 0
}

func validateValues(readings []Reading, cs ConditionSet, budget int, d *Diagnostics) bool {
	if cs.MinVal == nil && cs.MaxVal == nil {
		return true
	}

	errs := 0
	for i, r := range readings {
		switch {
		case cs.MinVal != nil && r.Value < *cs.MinVal:
			d.Addf("Reading #%d value %g is below the minimum allowed value %g (interval %s to %s).",
				i+1, r.Value, *cs.MinVal, r.StartTimestamp.Format(timestampLayout), r.EndTimestamp.Format(timestampLayout))
		case cs.MaxVal != nil && r.Value > *cs.MaxVal:
			d.Addf("Reading #%d value %g is above the maximum allowed value %g (interval %s to %s).",
				i+1, r.Value, *cs.MaxVal, r.StartTimestamp.Format(timestampLayout), r.EndTimestamp.Format(timestampLayout))
		default:
			continue
		}

		errs++
		if budget > 0 && errs >= budget {
			d.Addf("Value check stopped after %d errors.", errs)
			break
		}
	}
	return errs == 0
}

func validateInterval(readings []Reading, cs ConditionSet, d *Diagnostics) bool {
	if cs.IntervalThreshold == nil || len(readings) < 2 {
		return true
	}

	expected := Interval(readings)
	for i := 2; i < len(readings); i++ {
		gap := readings[i].StartTimestamp.Sub(readings[i-1].StartTimestamp)
		if absDuration(gap-expected) > *cs.IntervalThreshold {
			d.Add(fmt.Sprintf("Reading #%d starts %s after the previous one but the expected interval is %s (threshold %s).",
				i+1, gap, expected, *cs.IntervalThreshold))
			return false
		}
	}
	return true
}

// Interval returns the expected spacing of evenly spaced readings, or zero
// when there are fewer than two.
func Interval(readings []Reading) time.Duration {
	if len(readings) < 2 {
		return 0
	}
	return readings[1].StartTimestamp.Sub(readings[0].StartTimestamp)
}
