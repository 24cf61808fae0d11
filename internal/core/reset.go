package core

// reset.go decides whether a negative cumulative delta is a legitimate
// counter rollover. Meters that reset their odometer do so at a known time
// of day, so a drop is accepted only when the reading starts inside the
// configured window on its own calendar day.

import (
	"fmt"
	"strings"
	"time"
)

// ResetWindow is an inclusive time-of-day range such as 00:00:00-00:15:00.
type ResetWindow struct {
	Start string `yaml:"start" json:"start" validate:"omitempty,timeofday"`
	End   string `yaml:"end" json:"end" validate:"omitempty,timeofday"`
}

// DefaultResetWindow spans the whole day.
func DefaultResetWindow() ResetWindow {
	return ResetWindow{Start: "00:00:00", End: "23:59:59.999999"}
}

var timeOfDayLayouts = []string{"15:04:05", "15:04"}

// IsLegitimateReset reports whether candidateStart falls inside the reset
// window on the same calendar day. It always returns false when resets are
// disabled. A malformed window is a ConfigError.
func IsLegitimateReset(enabled bool, w ResetWindow, candidateStart time.Time) (bool, error) {
	if !enabled {
		return false, nil
	}

	day := startOfDay(candidateStart)
	lo, err := parseTimeOfDay(w.Start)
	if err != nil {
		return false, configErrorf("reset window start %q: %v", w.Start, err)
	}
	hi, err := parseTimeOfDay(w.End)
	if err != nil {
		return false, configErrorf("reset window end %q: %v", w.End, err)
	}

	return !candidateStart.Before(day.Add(lo)) && !candidateStart.After(day.Add(hi)), nil
}

// Validate checks both bounds without a candidate.
func (w ResetWindow) Validate() error {
	if _, err := parseTimeOfDay(w.Start); err != nil {
		return configErrorf("reset window start %q: %v", w.Start, err)
	}
	if _, err := parseTimeOfDay(w.End); err != nil {
		return configErrorf("reset window end %q: %v", w.End, err)
	}
	return nil
}

// ValidTimeOfDay reports whether s is an HH:MM[:SS[.fff]] time of day.
func ValidTimeOfDay(s string) bool {
	_, err := parseTimeOfDay(s)
	return err == nil
}

// startOfDay returns midnight of t's calendar day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseTimeOfDay returns the offset from midnight for HH:MM[:SS[.fff]].
func parseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second +
				time.Duration(t.Nanosecond()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}
