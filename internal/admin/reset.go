// Package admin provides administrative operations on stored meter data.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/meterload/internal/core"
)

// ResetTimeout is the maximum duration for a meter reset.
const ResetTimeout = 30 * time.Second

// Resetter wipes meter data.
type Resetter struct {
	DB core.Database
}

// ResetResult reports what a reset removed.
type ResetResult struct {
	Meter    string
	Readings int64
	Ingests  int64
}

type meterResetFn func(ctx context.Context, tx pgx.Tx, meterID int64, res *ResetResult) error

// ResetMeter deletes every stored reading of the named meter and returns it
// to the unseeded state, so the next upload starts a fresh baseline. With
// history set, the meter's ingest records are deleted as well.
// This is a destructive operation - use with caution.
func (r *Resetter) ResetMeter(ctx context.Context, name string, history bool) (ResetResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	res := ResetResult{Meter: name}

	meter, err := core.NewMeterStore(r.DB).MeterByName(ctx, name)
	if err != nil {
		return res, err
	}

	resets := []meterResetFn{deleteReadings, clearState}
	if history {
		resets = append(resets, deleteIngests)
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := runResets(ctx, tx, meter.ID, &res, resets); err != nil {
		return ResetResult{Meter: name}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ResetResult{Meter: name}, fmt.Errorf("commit reset: %w", err)
	}
	return res, nil
}

func runResets(ctx context.Context, tx pgx.Tx, meterID int64, res *ResetResult, resets []meterResetFn) error {
	for _, reset := range resets {
		if err := reset(ctx, tx, meterID, res); err != nil {
			return err
		}
	}
	return nil
}

func deleteReadings(ctx context.Context, tx pgx.Tx, meterID int64, res *ResetResult) error {
	tag, err := tx.Exec(ctx, `DELETE FROM readings WHERE meter_id = $1`, meterID)
	if err != nil {
		return fmt.Errorf("delete readings: %w", err)
	}
	res.Readings = tag.RowsAffected()
	return nil
}

func clearState(ctx context.Context, tx pgx.Tx, meterID int64, _ *ResetResult) error {
	return core.UpdateMeterState(meterID, core.NewMeterState())(ctx, tx)
}

func deleteIngests(ctx context.Context, tx pgx.Tx, meterID int64, res *ResetResult) error {
	tag, err := tx.Exec(ctx, `DELETE FROM reading_ingests WHERE meter_id = $1`, meterID)
	if err != nil {
		return fmt.Errorf("delete ingest history: %w", err)
	}
	res.Ingests = tag.RowsAffected()
	return nil
}
