package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quarterHours returns n consecutive 15 minute readings for meter 1.
func quarterHours(n int, value float64) []Reading {
	base := ts("2024-05-01 00:00")
	out := make([]Reading, n)
	for i := range out {
		start := base.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = Reading{MeterID: 1, Value: value, StartTimestamp: start, EndTimestamp: start.Add(15 * time.Minute)}
	}
	return out
}

func seededDB(t *testing.T) *memDB {
	t.Helper()
	db := newMemDB()
	_, err := NewMeterStore(db).EnsureMeter(context.Background(), "m1")
	require.NoError(t, err)
	return db
}

func TestCommitter_FlushesInBatches(t *testing.T) {
	db := seededDB(t)

	res, err := NewCommitter(2).Commit(context.Background(), db, quarterHours(5, 1.5), InsertOrIgnore)
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Written)
	assert.Equal(t, 3, res.Flushes)
	assert.Equal(t, 1, db.begun, "all flushes share one transaction")
	assert.Len(t, db.readings(1), 5)
}

func TestCommitter_DefaultFlushSize(t *testing.T) {
	assert.Equal(t, DefaultFlushSize, NewCommitter(0).FlushSize)

	db := seededDB(t)
	res, err := Committer{}.Commit(context.Background(), db, quarterHours(3, 1), InsertOrIgnore)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flushes)
}

func TestCommitter_ConflictModes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mode        CommitMode
		wantWritten int64
		wantValue   float64
	}{
		{name: "ignore keeps stored values", mode: InsertOrIgnore, wantWritten: 0, wantValue: 1},
		{name: "update overwrites stored values", mode: InsertOrUpdate, wantWritten: 2, wantValue: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := seededDB(t)
			_, err := NewCommitter(10).Commit(ctx, db, quarterHours(2, 1), InsertOrIgnore)
			require.NoError(t, err)

			res, err := NewCommitter(10).Commit(ctx, db, quarterHours(2, 9), tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWritten, res.Written)

			stored := db.readings(1)
			require.Len(t, stored, 2)
			assert.Equal(t, tt.wantValue, stored[0].Value)
			assert.Equal(t, tt.wantValue, stored[1].Value)
		})
	}
}

func TestCommitter_FailedFlushRollsBack(t *testing.T) {
	db := seededDB(t)
	db.failReadingAt = 3

	_, err := NewCommitter(2).Commit(context.Background(), db, quarterHours(5, 1), InsertOrIgnore)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommit)
	assert.Contains(t, err.Error(), "flush 2, reading 1 of 2")

	assert.Empty(t, db.readings(1), "earlier flushes must not survive")
	assert.Equal(t, 1, db.rolls)
}

func TestCommitter_FinalizeHooks(t *testing.T) {
	db := seededDB(t)
	readings := quarterHours(4, 2)
	state := MeterState{Reading: 42, StartTimestamp: readings[3].StartTimestamp, EndTimestamp: readings[3].EndTimestamp}
	rec := &IngestRecord{ID: uuid.New(), MeterID: 1, Status: IngestCommitted, RowsAccepted: 4}

	var order []string
	mark := func(name string) TxFunc {
		return func(context.Context, pgx.Tx) error {
			order = append(order, name)
			return nil
		}
	}

	_, err := NewCommitter(10).Commit(context.Background(), db, readings, InsertOrIgnore,
		mark("first"),
		UpdateMeterState(1, state),
		RecordIngestTx(rec),
		mark("last"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "last"}, order)
	m, ok := db.meter("m1")
	require.True(t, ok)
	assert.Equal(t, state, m.state)

	ingests := db.ingests()
	require.Len(t, ingests, 1)
	assert.Equal(t, rec.ID, ingests[0].ID)
	assert.Equal(t, IngestCommitted, ingests[0].Status)
	assert.Equal(t, int64(4), ingests[0].RowsWritten)
	assert.Equal(t, int64(4), rec.RowsWritten)
}

func TestCommitProgress(t *testing.T) {
	db := seededDB(t)

	var seen CommitResult
	var ok bool
	res, err := NewCommitter(2).Commit(context.Background(), db, quarterHours(5, 1), InsertOrIgnore,
		func(ctx context.Context, _ pgx.Tx) error {
			seen, ok = CommitProgress(ctx)
			return nil
		},
	)
	require.NoError(t, err)

	require.True(t, ok)
	assert.Equal(t, res, seen)
	assert.Equal(t, int64(5), seen.Written)
	assert.Equal(t, 3, seen.Flushes)

	_, ok = CommitProgress(context.Background())
	assert.False(t, ok)
}

func TestCommitter_FinalizeErrorRollsBack(t *testing.T) {
	db := seededDB(t)
	boom := errors.New("state write failed")

	_, err := NewCommitter(10).Commit(context.Background(), db, quarterHours(3, 1), InsertOrIgnore,
		func(context.Context, pgx.Tx) error { return boom },
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommit)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, db.readings(1))
}

func TestCommitter_CommitError(t *testing.T) {
	db := seededDB(t)
	db.commitErr = errors.New("connection reset by peer")

	_, err := NewCommitter(10).Commit(context.Background(), db, quarterHours(3, 1), InsertOrIgnore)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommit)
	assert.Empty(t, db.readings(1))
}

func TestCommitter_EmptyBatchStillFinalizes(t *testing.T) {
	db := seededDB(t)
	called := false

	res, err := NewCommitter(10).Commit(context.Background(), db, nil, InsertOrIgnore,
		func(context.Context, pgx.Tx) error { called = true; return nil },
	)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Zero(t, res.Flushes)
	assert.Zero(t, res.Written)
}

func TestUpdateMeterState_UnknownMeter(t *testing.T) {
	db := newMemDB()

	_, err := NewCommitter(10).Commit(context.Background(), db, nil, InsertOrIgnore,
		UpdateMeterState(99, NewMeterState()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMeterNotFound)
}

func ExampleCommitModeFor() {
	fmt.Println(CommitModeFor(false), CommitModeFor(true))
	// Output: insert_or_ignore insert_or_update
}
