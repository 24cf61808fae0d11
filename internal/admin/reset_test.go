package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/meterload/internal/core"
)

type fakeDB struct {
	meters map[string]int64
	tx     *fakeTx
	failOn string
}

func (db *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected Exec outside a transaction")
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	id, ok := db.meters[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{id: id}
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	db.tx = &fakeTx{failOn: db.failOn}
	return db.tx, nil
}

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	*dest[1].(*float64) = 12
	*dest[2].(*time.Time) = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	*dest[3].(*time.Time) = time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	return nil
}

type fakeTx struct {
	pgx.Tx
	failOn    string
	statement []string
	args      [][]any
	committed bool
	rolled    bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.failOn != "" && strings.Contains(sql, tx.failOn) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	tx.statement = append(tx.statement, sql)
	tx.args = append(tx.args, args)
	switch {
	case strings.Contains(sql, "DELETE FROM readings"):
		return pgconn.NewCommandTag("DELETE 96"), nil
	case strings.Contains(sql, "DELETE FROM reading_ingests"):
		return pgconn.NewCommandTag("DELETE 3"), nil
	case strings.Contains(sql, "UPDATE meters"):
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected statement %q", sql)
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.committed {
		return pgx.ErrTxClosed
	}
	tx.rolled = true
	return nil
}

func TestResetMeter(t *testing.T) {
	db := &fakeDB{meters: map[string]int64{"boiler": 4}}
	r := &Resetter{DB: db}

	res, err := r.ResetMeter(context.Background(), "boiler", false)
	require.NoError(t, err)

	assert.Equal(t, ResetResult{Meter: "boiler", Readings: 96}, res)
	require.True(t, db.tx.committed)
	require.Len(t, db.tx.statement, 2)
	assert.Contains(t, db.tx.statement[0], "DELETE FROM readings")
	assert.Contains(t, db.tx.statement[1], "UPDATE meters")

	state := db.tx.args[1]
	assert.Equal(t, int64(4), state[0])
	assert.Equal(t, 0.0, state[1])
	assert.Equal(t, core.EpochSentinel, state[2])
	assert.Equal(t, core.EpochSentinel, state[3])
}

func TestResetMeter_WithHistory(t *testing.T) {
	db := &fakeDB{meters: map[string]int64{"boiler": 4}}

	res, err := (&Resetter{DB: db}).ResetMeter(context.Background(), "boiler", true)
	require.NoError(t, err)
	assert.Equal(t, int64(96), res.Readings)
	assert.Equal(t, int64(3), res.Ingests)
	assert.Len(t, db.tx.statement, 3)
}

func TestResetMeter_UnknownMeter(t *testing.T) {
	db := &fakeDB{meters: map[string]int64{}}

	_, err := (&Resetter{DB: db}).ResetMeter(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, core.ErrMeterNotFound)
	assert.Nil(t, db.tx, "no transaction for a missing meter")
}

func TestResetMeter_FailureRollsBack(t *testing.T) {
	db := &fakeDB{meters: map[string]int64{"boiler": 4}, failOn: "UPDATE meters"}

	res, err := (&Resetter{DB: db}).ResetMeter(context.Background(), "boiler", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Zero(t, res.Readings, "counts are not reported for a rolled back reset")
	assert.True(t, db.tx.rolled)
	assert.False(t, db.tx.committed)
}
