package core

// processor.go is the sequential reading processor.
//
// Rows are visited in chronological order. Every row depends on the previous
// accepted one, so the loop is strictly sequential: all carried values live
// in a LoopState and each row is evaluated by the pure function step, which
// returns the next state together with a verdict for the row.
//
// Verdicts:
//   - accepted: the row becomes a Reading and the new "previous" reading
//   - seeded: the first row a cumulative or end-only meter has ever seen;
//     it only establishes the baseline
//   - dropped: a non-fatal problem; the row is skipped and "previous" is kept
//   - fatal: the whole batch is discarded and the meter state left untouched

import (
	"fmt"
	"time"
)

// timestampLayout renders timestamps in diagnostics.
const timestampLayout = "2006-01-02 15:04:05"

// LoopState is everything carried from one row to the next.
type LoopState struct {
	// PrevRaw is the last raw value seen. For cumulative meters it is
	// updated by every processed row, accepted or not.
	PrevRaw float64

	// PrevStart and PrevEnd bound the previous accepted (or seed) reading.
	PrevStart time.Time
	PrevEnd   time.Time

	// LastStart and LastEnd bound the last processed row, accepted or not.
	LastStart time.Time
	LastEnd   time.Time

	// LastNet is the net value of the last accepted reading.
	LastNet float64
}

// NewLoopState anchors the loop to the meter's stored state.
func NewLoopState(ms MeterState) LoopState {
	return LoopState{
		PrevRaw:   ms.Reading,
		PrevStart: ms.StartTimestamp,
		PrevEnd:   ms.EndTimestamp,
		LastStart: ms.StartTimestamp,
		LastEnd:   ms.EndTimestamp,
		LastNet:   ms.Reading,
	}
}

// MeterState returns the state to persist after the loop: the last raw
// value for cumulative meters, the last accepted net value otherwise.
func (s LoopState) MeterState(cumulative bool) MeterState {
	reading := s.LastNet
	if cumulative {
		reading = s.PrevRaw
	}
	return MeterState{Reading: reading, StartTimestamp: s.LastStart, EndTimestamp: s.LastEnd}
}

type verdict int

const (
	verdictAccepted verdict = iota
	verdictSeeded
	verdictDropped
	verdictFatal
)

func (v verdict) String() string {
	switch v {
	case verdictAccepted:
		return "accepted"
	case verdictSeeded:
		return "seeded"
	case verdictDropped:
		return "dropped"
	default:
		return "fatal"
	}
}

// rowResult is the fate of one row plus the messages it produced.
type rowResult struct {
	verdict  verdict
	reading  Reading
	messages []string
	err      error
}

func (r *rowResult) addf(format string, args ...any) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func (r *rowResult) drop(format string, args ...any) rowResult {
	r.verdict = verdictDropped
	r.addf(format, args...)
	return *r
}

func (r *rowResult) fatal(err *Error) rowResult {
	r.verdict = verdictFatal
	r.err = err
	r.messages = append(r.messages, err.Msg)
	return *r
}

// step evaluates one candidate. rowNum is the 1-based logical row number.
func step(st LoopState, c MappedCandidate, rowNum int, p Params) (LoopState, rowResult) {
	next := st
	res := rowResult{}

	// Value
	raw := c.Value
	value := raw
	if p.Cumulative {
		value = raw - st.PrevRaw
	}
	next.PrevRaw = raw

	// Timestamps
	var start, end time.Time
	if p.EndOnly {
		start, end = st.PrevEnd, c.TimeA
	} else {
		if c.TimeB == nil {
			return next, res.drop("Reading #%d has no end timestamp so it was dropped.", rowNum)
		}
		start, end = c.TimeA, *c.TimeB
	}
	next.LastStart, next.LastEnd = start, end

	// First reading ever for this meter only seeds the baseline.
	if isEpoch(st.PrevEnd) && (p.Cumulative || p.EndOnly) {
		next.PrevStart, next.PrevEnd = start, end
		res.verdict = verdictSeeded
		res.addf("Note: reading #%d (ending %s) is the first reading for this meter and only sets its baseline; it is not stored.",
			rowNum, end.Format(timestampLayout))
		return next, res
	}

	if !end.After(start) {
		return next, res.drop("Reading #%d end timestamp %s is not after its start timestamp %s so it was dropped.",
			rowNum, end.Format(timestampLayout), start.Format(timestampLayout))
	}

	hasPrev := !isEpoch(st.PrevEnd)
	strict := p.Cumulative || p.EndOnly

	if hasPrev && start.Before(st.PrevEnd) {
		if strict {
			return next, res.fatal(fatalErrorf(
				"reading #%d starts at %s which is before the previous reading ended at %s; cumulative and end-only data must be in order so all readings were rejected",
				rowNum, start.Format(timestampLayout), st.PrevEnd.Format(timestampLayout)))
		}
		res.addf("Warning: reading #%d starts at %s which is before the previous reading ended at %s.",
			rowNum, start.Format(timestampLayout), st.PrevEnd.Format(timestampLayout))
	}

	if hasPrev {
		gap := start.Sub(st.PrevEnd)
		if absDuration(gap) > p.ReadingGapTolerance {
			switch {
			case p.Cumulative:
				return next, res.fatal(fatalErrorf(
					"reading #%d starts %s from the end of the previous reading which exceeds the gap tolerance of %s; cumulative readings cannot be differenced across it so all readings were rejected",
					rowNum, gap, p.ReadingGapTolerance))
			case gap < 0:
				return next, res.drop("Reading #%d overlaps the previous reading by %s which exceeds the gap tolerance of %s so it was dropped.",
					rowNum, -gap, p.ReadingGapTolerance)
			default:
				res.addf("Warning: reading #%d starts %s after the previous reading ended which exceeds the gap tolerance of %s; readings may be missing.",
					rowNum, gap, p.ReadingGapTolerance)
			}
		}
	}

	if p.Cumulative {
		if raw < 0 {
			return next, res.fatal(fatalErrorf(
				"reading #%d has a negative raw cumulative value %g so all readings were rejected",
				rowNum, raw))
		}

		if value < 0 {
			ok, err := IsLegitimateReset(p.CumulativeReset, p.ResetWindow, start)
			if err != nil {
				e := err.(*Error)
				return next, res.fatal(e)
			}
			if !ok {
				return next, res.fatal(fatalErrorf(
					"reading #%d has a negative net value %g (raw %g after %g) outside any allowed cumulative reset so all readings were rejected",
					rowNum, value, raw, st.PrevRaw))
			}
			res.addf("Note: reading #%d is a cumulative reset at %s; raw value %g is used as the new baseline.",
				rowNum, start.Format(timestampLayout), raw)
			value = raw
		}
	}

	if hasPrev && !isEpoch(st.PrevStart) {
		prevLen := st.PrevEnd.Sub(st.PrevStart)
		curLen := end.Sub(start)
		if absDuration(curLen-prevLen) > p.ReadingLengthTolerance {
			res.addf("Warning: reading #%d lasts %s while the previous reading lasted %s which differs by more than %s.",
				rowNum, curLen, prevLen, p.ReadingLengthTolerance)
		}
	}

	next.PrevStart, next.PrevEnd = start, end
	next.LastNet = value
	res.verdict = verdictAccepted
	res.reading = Reading{
		MeterID:        p.MeterID,
		Value:          value,
		StartTimestamp: start,
		EndTimestamp:   end,
	}
	return next, res
}

// Process runs the state machine over the mapped candidates and, if every
// row passed, the condition set. It never returns an error directly: a
// rejection is reported through the outcome's Rejected and Err fields.
func Process(candidates []MappedCandidate, p Params, state MeterState) ProcessingOutcome {
	diag := NewDiagnostics(p.DiagnosticsLimit)

	if err := p.Validate(); err != nil {
		diag.Add(err.Error())
		return rejected(err, diag, state, 0)
	}

	out := ProcessingOutcome{AllAccepted: true}
	st := NewLoopState(state)

	idx, stride := 0, p.RepetitionFactor
	if p.TimeSort == TimeSortDescending {
		idx, stride = len(candidates)-1, -p.RepetitionFactor
	}

	rowNum := 0
	for ; idx >= 0 && idx < len(candidates); idx += stride {
		rowNum++
		next, res := step(st, candidates[idx], rowNum, p)
		for _, msg := range res.messages {
			diag.Add(msg)
		}

		switch res.verdict {
		case verdictFatal:
			return rejected(res.err, diag, state, rowNum)
		case verdictDropped:
			out.Dropped++
			out.AllAccepted = false
		case verdictAccepted:
			out.Accepted = append(out.Accepted, res.reading)
		}
		st = next
	}
	out.Processed = rowNum

	if p.Conditions != nil && len(out.Accepted) > 0 {
		if !ValidateReadings(out.Accepted, *p.Conditions, diag) {
			err := &Error{Kind: KindValidation, Msg: "readings violate the meter's condition set"}
			diag.Add("Validation failed so all readings were rejected.")
			return rejected(err, diag, state, rowNum)
		}
	}

	out.State = st.MeterState(p.Cumulative)
	out.Diagnostics = diag.String()
	out.Messages, out.MessagesLost = diag.Count(), diag.Lost()
	return out
}

func rejected(err error, diag *Diagnostics, state MeterState, processed int) ProcessingOutcome {
	return ProcessingOutcome{
		AllAccepted: false,
		Diagnostics: diag.String(),
		Rejected:    true,
		Err:         err,
		State:       state,
		Processed:   processed,

		Messages:     diag.Count(),
		MessagesLost: diag.Lost(),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
