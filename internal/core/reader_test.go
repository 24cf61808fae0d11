package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		hasHeader bool
		comma     rune
		want      []RawRow
	}{
		{
			name:      "header discarded",
			input:     "start,end,value\n2024-01-01 00:00,2024-01-01 00:15,1.5\n",
			hasHeader: true,
			want:      []RawRow{{"2024-01-01 00:00", "2024-01-01 00:15", "1.5"}},
		},
		{
			name:  "no header",
			input: "a,b\nc,d\n",
			want:  []RawRow{{"a", "b"}, {"c", "d"}},
		},
		{
			name:      "header discarded even when it looks like data",
			input:     "1,2\n3,4\n",
			hasHeader: true,
			want:      []RawRow{{"3", "4"}},
		},
		{
			name:  "ragged rows kept",
			input: "a,b,c\nd\n",
			want:  []RawRow{{"a", "b", "c"}, {"d"}},
		},
		{
			name:  "semicolon delimiter",
			input: "2024-01-01 00:15;12,5\n",
			comma: ';',
			want:  []RawRow{{"2024-01-01 00:15", "12,5"}},
		},
		{
			name:  "quoted field with comma",
			input: `"1,234.5",2024-01-01` + "\n",
			want:  []RawRow{{"1,234.5", "2024-01-01"}},
		},
		{
			name:  "no trailing newline",
			input: "x,y",
			want:  []RawRow{{"x", "y"}},
		},
		{
			name:  "empty source",
			input: "",
			want:  nil,
		},
		{
			name:      "header only",
			input:     "start,end,value\n",
			hasHeader: true,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ReadRows(strings.NewReader(tt.input), tt.hasHeader, ReaderOptions{Comma: tt.comma})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestReadRows_BOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("value,end\n3,2024-01-01\n")...)

	rows, err := ReadRows(bytes.NewReader(input), false, ReaderOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "value", rows[0][0])
}

func TestReadRows_InvalidEncoding(t *testing.T) {
	input := []byte("a,b\n\xff,c\n")

	_, err := ReadRows(bytes.NewReader(input), false, ReaderOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRead), "want a read error, got %v", err)
	assert.True(t, errors.Is(err, ErrInvalidEncoding))
	assert.Contains(t, err.Error(), "encoding error")
}

func TestReadRows_Lenient(t *testing.T) {
	input := []byte("a,b\n\xff,c\n")

	rows, err := ReadRows(bytes.NewReader(input), false, ReaderOptions{Lenient: true})
	require.NoError(t, err)
	assert.Equal(t, []RawRow{{"a", "b"}, {"?", "c"}}, rows)
}

func TestRowReader(t *testing.T) {
	input := "h1,h2\n1,2\n3,4\n"
	rr := NewRowReader(strings.NewReader(input), true, ReaderOptions{Size: int64(len(input))})

	row, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, RawRow{"1", "2"}, row)
	assert.Equal(t, 2, rr.Line(), "line count includes the header")

	row, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, RawRow{"3", "4"}, row)

	_, err = rr.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(len(input)), rr.BytesRead())
}

func TestRowReader_SourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	rr := NewRowReader(io.MultiReader(strings.NewReader("a,b\n"), errReader{boom}), false, ReaderOptions{})

	row, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, RawRow{"a", "b"}, row)

	_, err = rr.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
