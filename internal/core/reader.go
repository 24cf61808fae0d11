package core

// reader.go is the tabular reader: it turns a delimited source into RawRow
// values in file order.
//
// ReadRows materializes the whole file and suits small uploads. RowReader
// yields one row at a time so that large files only hold their mapped
// candidates in memory, never their raw text.

import (
	"encoding/csv"
	"errors"
	"io"
)

// ReaderOptions tunes the tabular reader.
type ReaderOptions struct {
	// Comma is the field delimiter (default ',').
	Comma rune

	// Lenient replaces invalid UTF-8 instead of failing with a ReadError.
	Lenient bool

	// Size is the source size in bytes if known, for progress reporting.
	Size int64
}

// RowReader streams RawRow values from a delimited source.
type RowReader struct {
	csv       *csv.Reader
	counter   *StreamingCountingReader
	hasHeader bool
	line      int
	started   bool
}

// NewRowReader wraps r for streaming. If hasHeader is true the first row is
// discarded unconditionally.
func NewRowReader(r io.Reader, hasHeader bool, opts ReaderOptions) *RowReader {
	src, counter := WrapForStreaming(r, opts.Size, opts.Lenient)

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	return &RowReader{
		csv:       cr,
		counter:   counter,
		hasHeader: hasHeader,
	}
}

// Next returns the next data row. It returns io.EOF after the last row and a
// ReadError if the source cannot be decoded.
func (r *RowReader) Next() (RawRow, error) {
	if !r.started {
		r.started = true
		if r.hasHeader {
			if _, err := r.read(); err != nil {
				return nil, err
			}
		}
	}
	return r.read()
}

func (r *RowReader) read() (RawRow, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		line := r.line + 1
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			line = perr.Line
		}
		if errors.Is(err, ErrInvalidEncoding) {
			return nil, readErrorf(err, "line %d", line)
		}
		return nil, readErrorf(err, "invalid csv at line %d", line)
	}
	r.line++
	return RawRow(record), nil
}

// Line returns the number of records consumed, header included.
func (r *RowReader) Line() int { return r.line }

// BytesRead returns the number of source bytes consumed so far.
func (r *RowReader) BytesRead() int64 { return r.counter.BytesRead }

// ReadRows reads every row of a delimited source into memory.
// If hasHeader is true the first row is discarded unconditionally.
func ReadRows(r io.Reader, hasHeader bool, opts ReaderOptions) ([]RawRow, error) {
	rr := NewRowReader(r, hasHeader, opts)
	var rows []RawRow
	for {
		row, err := rr.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
