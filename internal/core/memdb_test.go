package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// memDB is an in-memory stand-in for the meters, readings and
// reading_ingests tables. It understands exactly the statements this
// package issues. Transactions work on a copy that replaces the committed
// data on Commit.
type memDB struct {
	mu    sync.Mutex
	data  *memData
	begun int
	rolls int

	// failReadingAt fails the n-th reading written in a transaction (1-based).
	failReadingAt int
	// commitErr is returned by Tx.Commit.
	commitErr error
	// finalizeErr fails the meter state update inside a transaction.
	finalizeErr error
}

type readingKey struct {
	meter      int64
	start, end int64
}

type memMeter struct {
	id    int64
	name  string
	state MeterState
}

type memData struct {
	nextID   int64
	meters   map[string]*memMeter
	readings map[readingKey]float64
	ingests  []IngestRecord
}

func newMemDB() *memDB {
	return &memDB{data: &memData{
		meters:   map[string]*memMeter{},
		readings: map[readingKey]float64{},
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:   d.nextID,
		meters:   make(map[string]*memMeter, len(d.meters)),
		readings: make(map[readingKey]float64, len(d.readings)),
		ingests:  append([]IngestRecord(nil), d.ingests...),
	}
	for k, m := range d.meters {
		cp := *m
		c.meters[k] = &cp
	}
	for k, v := range d.readings {
		c.readings[k] = v
	}
	return c
}

func (d *memData) meterByID(id int64) *memMeter {
	for _, m := range d.meters {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (d *memData) exec(sql string, args []any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "CREATE TABLE"):
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case strings.HasPrefix(sql, "INSERT INTO reading_ingests"):
		d.ingests = append(d.ingests, IngestRecord{
			ID:           args[0].(uuid.UUID),
			MeterID:      args[1].(int64),
			FileName:     args[2].(string),
			Source:       args[3].(string),
			RowsAccepted: args[4].(int),
			RowsWritten:  args[5].(int64),
			AllAccepted:  args[6].(bool),
			Status:       IngestStatus(args[7].(string)),
			Diagnostics:  args[8].(string),
			Duration:     time.Duration(args[9].(int64)) * time.Millisecond,
			CreatedAt:    time.Now(),
		})
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(sql, "DELETE FROM reading_ingests"):
		cutoff, limit := args[0].(time.Time), args[1].(int)
		kept := d.ingests[:0]
		var n int64
		for _, rec := range d.ingests {
			if rec.CreatedAt.Before(cutoff) && n < int64(limit) {
				n++
				continue
			}
			kept = append(kept, rec)
		}
		d.ingests = kept
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	case strings.HasPrefix(sql, "UPDATE meters"):
		m := d.meterByID(args[0].(int64))
		if m == nil {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		m.state = MeterState{Reading: args[1].(float64), StartTimestamp: args[2].(time.Time), EndTimestamp: args[3].(time.Time)}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case strings.HasPrefix(sql, "INSERT INTO readings"):
		key := readingKey{meter: args[0].(int64), start: args[2].(time.Time).UnixNano(), end: args[3].(time.Time).UnixNano()}
		if _, exists := d.readings[key]; exists && !strings.Contains(sql, "DO UPDATE") {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		d.readings[key] = args[1].(float64)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("memdb: unsupported statement %q", sql)
}

func (d *memData) queryRow(sql string, args []any) pgx.Row {
	sql = strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(sql, "INSERT INTO meters"):
		name := args[0].(string)
		m, ok := d.meters[name]
		if !ok {
			d.nextID++
			m = &memMeter{id: d.nextID, name: name, state: NewMeterState()}
			d.meters[name] = m
		}
		return memRow{vals: []any{m.id, m.state.Reading, m.state.StartTimestamp, m.state.EndTimestamp}}
	case strings.Contains(sql, "FROM meters WHERE name"):
		m, ok := d.meters[args[0].(string)]
		if !ok {
			return memRow{err: pgx.ErrNoRows}
		}
		return memRow{vals: []any{m.id, m.state.Reading, m.state.StartTimestamp, m.state.EndTimestamp}}
	case strings.Contains(sql, "FROM meters WHERE id"):
		m := d.meterByID(args[0].(int64))
		if m == nil {
			return memRow{err: pgx.ErrNoRows}
		}
		return memRow{vals: []any{m.state.Reading, m.state.StartTimestamp, m.state.EndTimestamp}}
	case strings.Contains(sql, "count(*) FROM readings"):
		var n int64
		for k := range d.readings {
			if k.meter == args[0].(int64) {
				n++
			}
		}
		return memRow{vals: []any{n}}
	}
	return memRow{err: fmt.Errorf("memdb: unsupported query %q", sql)}
}

func (db *memDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.exec(strings.TrimSpace(sql), args)
}

func (db *memDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("memdb: Query not supported")
}

func (db *memDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.queryRow(sql, args)
}

func (db *memDB) Begin(context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.begun++
	return &memTx{db: db, data: db.data.clone()}, nil
}

// readings returns the committed readings of a meter, oldest first.
func (db *memDB) readings(meterID int64) []Reading {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Reading
	for k, v := range db.data.readings {
		if k.meter == meterID {
			out = append(out, Reading{
				MeterID:        meterID,
				Value:          v,
				StartTimestamp: time.Unix(0, k.start).UTC(),
				EndTimestamp:   time.Unix(0, k.end).UTC(),
			})
		}
	}
	slices.SortFunc(out, func(a, b Reading) int { return a.StartTimestamp.Compare(b.StartTimestamp) })
	return out
}

func (db *memDB) ingests() []IngestRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]IngestRecord(nil), db.data.ingests...)
}

func (db *memDB) meter(name string) (memMeter, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.data.meters[name]
	if !ok {
		return memMeter{}, false
	}
	return *m, true
}

type memTx struct {
	pgx.Tx
	db      *memDB
	data    *memData
	written int
	done    bool
}

func (tx *memTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.done {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	sql = strings.TrimSpace(sql)
	if tx.db.finalizeErr != nil && strings.HasPrefix(sql, "UPDATE meters") {
		return pgconn.CommandTag{}, tx.db.finalizeErr
	}
	return tx.data.exec(sql, args)
}

func (tx *memTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return tx.data.queryRow(sql, args)
}

func (tx *memTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	br := &memBatchResults{}
	for _, q := range b.QueuedQueries {
		tx.written++
		if tx.db.failReadingAt > 0 && tx.written == tx.db.failReadingAt {
			br.results = append(br.results, memResult{err: errors.New("violates check constraint \"readings_check\"")})
			continue
		}
		tag, err := tx.data.exec(strings.TrimSpace(q.SQL), q.Arguments)
		br.results = append(br.results, memResult{tag: tag, err: err})
	}
	return br
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	if tx.db.commitErr != nil {
		return tx.db.commitErr
	}
	tx.db.mu.Lock()
	tx.db.data = tx.data
	tx.db.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	tx.db.rolls++
	tx.db.mu.Unlock()
	return nil
}

type memResult struct {
	tag pgconn.CommandTag
	err error
}

type memBatchResults struct {
	pgx.BatchResults
	results []memResult
	next    int
}

func (br *memBatchResults) Exec() (pgconn.CommandTag, error) {
	if br.next >= len(br.results) {
		return pgconn.CommandTag{}, errors.New("memdb: no more batch results")
	}
	r := br.results[br.next]
	br.next++
	return r.tag, r.err
}

func (br *memBatchResults) Close() error { return nil }

type memRow struct {
	vals []any
	err  error
}

func (r memRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("memdb: scan %d values into %d targets", len(r.vals), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.vals[i].(int64)
		case *float64:
			*p = r.vals[i].(float64)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		case *string:
			*p = r.vals[i].(string)
		default:
			return fmt.Errorf("memdb: unsupported scan target %T", d)
		}
	}
	return nil
}
