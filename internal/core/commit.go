package core

// commit.go is the bulk committer. Accepted readings are queued into a
// pgx.Batch and flushed every FlushSize rows; every flush and the finalize
// hooks run inside one outer transaction, so either all readings become
// visible together or none do.

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DefaultFlushSize bounds the number of readings queued per batch.
const DefaultFlushSize = 1000

const (
	insertReadingIgnoreSQL = `INSERT INTO readings (meter_id, reading, start_timestamp, end_timestamp)
VALUES ($1, $2, $3, $4)
ON CONFLICT (meter_id, start_timestamp, end_timestamp) DO NOTHING`

	insertReadingUpdateSQL = `INSERT INTO readings (meter_id, reading, start_timestamp, end_timestamp)
VALUES ($1, $2, $3, $4)
ON CONFLICT (meter_id, start_timestamp, end_timestamp) DO UPDATE SET reading = EXCLUDED.reading`
)

// TxFunc runs inside the commit transaction after every reading is written.
// CommitProgress on its ctx reports what was written.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

type commitProgressKey struct{}

// CommitProgress returns the readings written so far by the Commit whose
// finalize hook received ctx.
func CommitProgress(ctx context.Context) (CommitResult, bool) {
	res, ok := ctx.Value(commitProgressKey{}).(CommitResult)
	return res, ok
}

// CommitResult summarizes a successful commit.
type CommitResult struct {
	// Written counts rows inserted or updated. Conflicting rows ignored
	// under InsertOrIgnore are not counted.
	Written int64
	Flushes int
}

// Committer writes readings in bounded batches.
type Committer struct {
	FlushSize int
}

// NewCommitter returns a Committer; a non-positive size uses DefaultFlushSize.
func NewCommitter(flushSize int) Committer {
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}
	return Committer{FlushSize: flushSize}
}

// Commit writes readings and runs finalize in one transaction. Any failure
// rolls the whole transaction back and returns a CommitError.
func (c Committer) Commit(ctx context.Context, db TxStarter, readings []Reading, mode CommitMode, finalize ...TxFunc) (CommitResult, error) {
	var res CommitResult

	flushSize := c.FlushSize
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}

	query := insertReadingIgnoreSQL
	if mode == InsertOrUpdate {
		query = insertReadingUpdateSQL
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return res, newError(KindCommit, err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(query, r.MeterID, r.Value, r.StartTimestamp, r.EndTimestamp)
		if batch.Len() >= flushSize {
			if err := flush(ctx, tx, batch, &res); err != nil {
				return CommitResult{}, err
			}
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := flush(ctx, tx, batch, &res); err != nil {
			return CommitResult{}, err
		}
	}

	fctx := context.WithValue(ctx, commitProgressKey{}, res)
	for _, fn := range finalize {
		if err := fn(fctx, tx); err != nil {
			return CommitResult{}, newError(KindCommit, err, "finalize")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CommitResult{}, newError(KindCommit, err, "commit")
	}
	return res, nil
}

func flush(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, res *CommitResult) error {
	n := batch.Len()
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return newError(KindCommit, err, "flush %d, reading %d of %d", res.Flushes+1, i+1, n)
		}
		res.Written += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return newError(KindCommit, err, "flush %d", res.Flushes+1)
	}
	res.Flushes++
	return nil
}
