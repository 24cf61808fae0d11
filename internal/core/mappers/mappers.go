package mappers

import (
	"fmt"

	"github.com/JonMunkholm/meterload/internal/core"
)

func init() {
	Register(Definition{
		Name:        "standard",
		Description: "reading, start timestamp, end timestamp",
		Columns:     []string{"reading", "start_timestamp", "end_timestamp"},
		Map:         interval(0, 1, 2),
	})
	Register(Definition{
		Name:        "start-end-value",
		Description: "start timestamp, end timestamp, reading",
		Columns:     []string{"start_timestamp", "end_timestamp", "reading"},
		Map:         interval(2, 0, 1),
	})
	Register(Definition{
		Name:        "end-only",
		Description: "reading, end timestamp",
		Columns:     []string{"reading", "end_timestamp"},
		EndOnly:     true,
		Map:         endOnly(0, 1),
	})
	Register(Definition{
		Name:        "timestamp-value",
		Description: "end timestamp, reading",
		Columns:     []string{"end_timestamp", "reading"},
		EndOnly:     true,
		Map:         endOnly(1, 0),
	})
}

// interval maps rows that carry both ends of the interval.
func interval(valueCol, startCol, endCol int) core.RowMapper {
	width := max(valueCol, startCol, endCol) + 1
	return func(row core.RawRow) (core.MappedCandidate, error) {
		if len(row) < width {
			return core.MappedCandidate{}, fmt.Errorf("expected %d columns, got %d", width, len(row))
		}
		value, err := core.ParseNumber(row[valueCol])
		if err != nil {
			return core.MappedCandidate{}, fmt.Errorf("reading: %w", err)
		}
		start, err := core.ParseTimestamp(row[startCol])
		if err != nil {
			return core.MappedCandidate{}, fmt.Errorf("start timestamp: %w", err)
		}
		end, err := core.ParseTimestamp(row[endCol])
		if err != nil {
			return core.MappedCandidate{}, fmt.Errorf("end timestamp: %w", err)
		}
		return core.MappedCandidate{Value: value, TimeA: start, TimeB: &end}, nil
	}
}

// endOnly maps rows that carry only the end of the interval.
func endOnly(valueCol, endCol int) core.RowMapper {
	width := max(valueCol, endCol) + 1
	return func(row core.RawRow) (core.MappedCandidate, error) {
		if len(row) < width {
			return core.MappedCandidate{}, fmt.Errorf("expected %d columns, got %d", width, len(row))
		}
		value, err := core.ParseNumber(row[valueCol])
		if err != nil {
			return core.MappedCandidate{}, fmt.Errorf("reading: %w", err)
		}
		end, err := core.ParseTimestamp(row[endCol])
		if err != nil {
			return core.MappedCandidate{}, fmt.Errorf("end timestamp: %w", err)
		}
		return core.MappedCandidate{Value: value, TimeA: end}, nil
	}
}
