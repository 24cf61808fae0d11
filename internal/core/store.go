package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Schema creates the tables the pipeline reads and writes. Safe to run
// repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS meters (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	reading         DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_timestamp TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00',
	end_timestamp   TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00'
);

CREATE TABLE IF NOT EXISTS readings (
	meter_id        BIGINT NOT NULL REFERENCES meters(id),
	reading         DOUBLE PRECISION NOT NULL,
	start_timestamp TIMESTAMP NOT NULL,
	end_timestamp   TIMESTAMP NOT NULL,
	PRIMARY KEY (meter_id, start_timestamp, end_timestamp),
	CHECK (start_timestamp < end_timestamp)
);

CREATE TABLE IF NOT EXISTS reading_ingests (
	id            UUID PRIMARY KEY,
	meter_id      BIGINT NOT NULL REFERENCES meters(id),
	file_name     TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	rows_accepted INTEGER NOT NULL DEFAULT 0,
	rows_written  BIGINT NOT NULL DEFAULT 0,
	all_accepted  BOOLEAN NOT NULL DEFAULT FALSE,
	status        TEXT NOT NULL,
	diagnostics   TEXT NOT NULL DEFAULT '',
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reading_ingests_meter ON reading_ingests (meter_id, created_at DESC);
`

// ErrMeterNotFound is returned when a meter lookup misses.
var ErrMeterNotFound = errors.New("meter not found")

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Meter is a row of the meters table.
type Meter struct {
	ID    int64
	Name  string
	State MeterState
}

// MeterStore reads and writes meter bookkeeping.
type MeterStore struct {
	db DBTX
}

// NewMeterStore wraps a pool or transaction.
func NewMeterStore(db DBTX) *MeterStore {
	return &MeterStore{db: db}
}

// EnsureMeter returns the named meter, creating it with an empty state if
// it does not exist yet.
func (m *MeterStore) EnsureMeter(ctx context.Context, name string) (Meter, error) {
	meter := Meter{Name: name}
	err := m.db.QueryRow(ctx, `
		INSERT INTO meters (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, reading, start_timestamp, end_timestamp`, name,
	).Scan(&meter.ID, &meter.State.Reading, &meter.State.StartTimestamp, &meter.State.EndTimestamp)
	if err != nil {
		return Meter{}, fmt.Errorf("ensure meter %q: %w", name, err)
	}
	return meter, nil
}

// MeterByName looks up an existing meter.
func (m *MeterStore) MeterByName(ctx context.Context, name string) (Meter, error) {
	meter := Meter{Name: name}
	err := m.db.QueryRow(ctx,
		`SELECT id, reading, start_timestamp, end_timestamp FROM meters WHERE name = $1`, name,
	).Scan(&meter.ID, &meter.State.Reading, &meter.State.StartTimestamp, &meter.State.EndTimestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Meter{}, fmt.Errorf("%w: %s", ErrMeterNotFound, name)
	}
	if err != nil {
		return Meter{}, fmt.Errorf("meter %q: %w", name, err)
	}
	return meter, nil
}

// GetMeterState loads the persisted state of a meter.
func (m *MeterStore) GetMeterState(ctx context.Context, meterID int64) (MeterState, error) {
	var st MeterState
	err := m.db.QueryRow(ctx,
		`SELECT reading, start_timestamp, end_timestamp FROM meters WHERE id = $1`, meterID,
	).Scan(&st.Reading, &st.StartTimestamp, &st.EndTimestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeterState{}, fmt.Errorf("%w: id %d", ErrMeterNotFound, meterID)
	}
	if err != nil {
		return MeterState{}, fmt.Errorf("meter state %d: %w", meterID, err)
	}
	st.StartTimestamp = st.StartTimestamp.UTC()
	st.EndTimestamp = st.EndTimestamp.UTC()
	return st, nil
}

// UpdateMeterState returns a TxFunc that persists st for meterID.
func UpdateMeterState(meterID int64, st MeterState) TxFunc {
	return func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE meters SET reading = $2, start_timestamp = $3, end_timestamp = $4 WHERE id = $1`,
			meterID, st.Reading, st.StartTimestamp, st.EndTimestamp)
		if err != nil {
			return fmt.Errorf("update meter state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d", ErrMeterNotFound, meterID)
		}
		return nil
	}
}

// IngestStatus is the recorded result of an ingest.
type IngestStatus string

const (
	IngestCommitted IngestStatus = "committed"
	IngestRejected  IngestStatus = "rejected"
	IngestFailed    IngestStatus = "failed"
)

// IngestRecord is one row of reading_ingests.
type IngestRecord struct {
	ID           uuid.UUID
	MeterID      int64
	FileName     string
	Source       string
	RowsAccepted int
	RowsWritten  int64
	AllAccepted  bool
	Status       IngestStatus
	Diagnostics  string
	Duration     time.Duration
	CreatedAt    time.Time
}

const insertIngestSQL = `INSERT INTO reading_ingests
	(id, meter_id, file_name, source, rows_accepted, rows_written, all_accepted, status, diagnostics, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func insertIngestArgs(rec IngestRecord) []any {
	return []any{rec.ID, rec.MeterID, rec.FileName, rec.Source, rec.RowsAccepted, rec.RowsWritten,
		rec.AllAccepted, string(rec.Status), rec.Diagnostics, rec.Duration.Milliseconds()}
}

// RecordIngestTx returns a TxFunc that stores rec in the commit transaction.
// rec is read when the hook runs, so fields set after the call are kept.
// RowsWritten is taken from the running commit.
func RecordIngestTx(rec *IngestRecord) TxFunc {
	return func(ctx context.Context, tx pgx.Tx) error {
		if progress, ok := CommitProgress(ctx); ok {
			rec.RowsWritten = progress.Written
		}
		if _, err := tx.Exec(ctx, insertIngestSQL, insertIngestArgs(*rec)...); err != nil {
			return fmt.Errorf("record ingest: %w", err)
		}
		return nil
	}
}

// RecordIngest stores rec outside any commit, used for rejected and failed
// ingests.
func (m *MeterStore) RecordIngest(ctx context.Context, rec IngestRecord) error {
	if _, err := m.db.Exec(ctx, insertIngestSQL, insertIngestArgs(rec)...); err != nil {
		return fmt.Errorf("record ingest: %w", err)
	}
	return nil
}

// IngestHistory returns the most recent ingests of a meter, newest first.
func (m *MeterStore) IngestHistory(ctx context.Context, meterID int64, limit int) ([]IngestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.Query(ctx, `
		SELECT id, meter_id, file_name, source, rows_accepted, rows_written, all_accepted,
		       status, diagnostics, duration_ms, created_at
		FROM reading_ingests
		WHERE meter_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, meterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ingest history: %w", err)
	}
	defer rows.Close()

	var out []IngestRecord
	for rows.Next() {
		var rec IngestRecord
		var status string
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.MeterID, &rec.FileName, &rec.Source, &rec.RowsAccepted, &rec.RowsWritten,
			&rec.AllAccepted, &status, &rec.Diagnostics, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingest: %w", err)
		}
		rec.Status = IngestStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountReadings returns the number of stored readings for a meter.
func CountReadings(ctx context.Context, db DBTX, meterID int64) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM readings WHERE meter_id = $1`, meterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// ListReadings returns a meter's readings that start inside [from, to),
// oldest first. A zero bound is open.
func ListReadings(ctx context.Context, db DBTX, meterID int64, from, to time.Time) ([]Reading, error) {
	var fromArg, toArg any
	if !from.IsZero() {
		fromArg = from
	}
	if !to.IsZero() {
		toArg = to
	}

	rows, err := db.Query(ctx, `
		SELECT meter_id, reading, start_timestamp, end_timestamp
		FROM readings
		WHERE meter_id = $1
		  AND ($2::timestamp IS NULL OR start_timestamp >= $2)
		  AND ($3::timestamp IS NULL OR start_timestamp < $3)
		ORDER BY start_timestamp`, meterID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.MeterID, &r.Value, &r.StartTimestamp, &r.EndTimestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.StartTimestamp = r.StartTimestamp.UTC()
		r.EndTimestamp = r.EndTimestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeIngests deletes ingest records created before cutoff, batchSize rows
// at a time, and returns how many were removed.
func (m *MeterStore) PurgeIngests(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		tag, err := m.db.Exec(ctx, `
			DELETE FROM reading_ingests
			WHERE id IN (
				SELECT id FROM reading_ingests
				WHERE created_at < $1
				LIMIT $2
			)`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("purge ingests: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}
