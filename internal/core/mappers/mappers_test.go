package mappers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/meterload/internal/core"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		mapper    string
		row       core.RawRow
		wantValue float64
		wantA     time.Time
		wantB     time.Time // zero for end-only
	}{
		{
			mapper:    "standard",
			row:       core.RawRow{"12.5", "2024-01-01 00:00", "2024-01-01 00:15"},
			wantValue: 12.5,
			wantA:     at("2024-01-01 00:00"),
			wantB:     at("2024-01-01 00:15"),
		},
		{
			mapper:    "start-end-value",
			row:       core.RawRow{"2024-01-01 00:00", "2024-01-01 00:15", "$1,000"},
			wantValue: 1000,
			wantA:     at("2024-01-01 00:00"),
			wantB:     at("2024-01-01 00:15"),
		},
		{
			mapper:    "end-only",
			row:       core.RawRow{"7", "01/02/2024 06:00"},
			wantValue: 7,
			wantA:     at("2024-01-02 06:00"),
		},
		{
			mapper:    "timestamp-value",
			row:       core.RawRow{"2024-01-02 06:00", "(3)"},
			wantValue: -3,
			wantA:     at("2024-01-02 06:00"),
		},
		{
			mapper:    "standard",
			row:       core.RawRow{"1", "2024-01-01 00:00", "2024-01-01 00:15", "ignored extra"},
			wantValue: 1,
			wantA:     at("2024-01-01 00:00"),
			wantB:     at("2024-01-01 00:15"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.mapper, func(t *testing.T) {
			def, err := Lookup(tt.mapper)
			require.NoError(t, err)

			c, err := def.Map(tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, c.Value)
			assert.True(t, tt.wantA.Equal(c.TimeA), "TimeA = %v, want %v", c.TimeA, tt.wantA)

			if tt.wantB.IsZero() {
				assert.Nil(t, c.TimeB)
				assert.True(t, def.EndOnly)
				return
			}
			require.NotNil(t, c.TimeB)
			assert.True(t, tt.wantB.Equal(*c.TimeB), "TimeB = %v, want %v", *c.TimeB, tt.wantB)
			assert.False(t, def.EndOnly)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mapper  string
		row     core.RawRow
		wantErr string
	}{
		{name: "too few columns", mapper: "standard", row: core.RawRow{"1", "2024-01-01"}, wantErr: "expected 3 columns, got 2"},
		{name: "end-only too few", mapper: "timestamp-value", row: core.RawRow{"2024-01-01"}, wantErr: "expected 2 columns, got 1"},
		{name: "bad reading", mapper: "standard", row: core.RawRow{"n/a", "2024-01-01", "2024-01-02"}, wantErr: "reading: invalid number"},
		{name: "bad start", mapper: "standard", row: core.RawRow{"1", "soon", "2024-01-02"}, wantErr: "start timestamp: invalid date"},
		{name: "bad end", mapper: "start-end-value", row: core.RawRow{"2024-01-01", "later", "1"}, wantErr: "end timestamp: invalid date"},
		{name: "end-only bad end", mapper: "end-only", row: core.RawRow{"1", ""}, wantErr: "end timestamp: invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Lookup(tt.mapper)
			require.NoError(t, err)

			_, err = def.Map(tt.row)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"end-only", "standard", "start-end-value", "timestamp-value"}, Names())

	_, ok := Get("nope")
	assert.False(t, ok)

	_, err := Lookup("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mapper "nope"`)
	assert.Contains(t, err.Error(), "standard")

	assert.Panics(t, func() {
		Register(Definition{Name: "standard", Map: interval(0, 1, 2)})
	}, "duplicate names panic")
	assert.Panics(t, func() {
		Register(Definition{Name: "no-map"})
	}, "a mapper needs a Map function")
}
