package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/meterload/internal/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// contextCheckInterval is how many rows are read between cancellation checks.
const contextCheckInterval = 1000

// DefaultStreamingThreshold is the source size at or above which rows are
// mapped while streaming instead of being read into memory first.
const DefaultStreamingThreshold int64 = 10 << 20

// DefaultIngestTimeout bounds a single ingest.
const DefaultIngestTimeout = 10 * time.Minute

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	MaxConcurrent      int
	MaxWait            time.Duration
	Timeout            time.Duration
	FlushSize          int
	StreamingThreshold int64
	DiagnosticsLimit   int
	Lenient            bool

	// Observer receives a callback per ingest (metrics). Optional.
	Observer IngestObserver
}

// IngestObserver is notified about every ingest.
type IngestObserver interface {
	IngestStarted()
	IngestFinished(*IngestResult)
}

type nopObserver struct{}

func (nopObserver) IngestStarted()               {}
func (nopObserver) IngestFinished(*IngestResult) {}

// Service runs ingests against a database.
type Service struct {
	db        Database
	meters    *MeterStore
	committer Committer
	limiter   *IngestLimiter
	locks     *MeterLocks
	cfg       ServiceConfig
	observer  IngestObserver
}

// NewService creates a Service.
func NewService(db Database, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIngestTimeout
	}
	if cfg.StreamingThreshold <= 0 {
		cfg.StreamingThreshold = DefaultStreamingThreshold
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	return &Service{
		db:        db,
		meters:    NewMeterStore(db),
		committer: NewCommitter(cfg.FlushSize),
		limiter:   NewIngestLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		locks:     NewMeterLocks(),
		cfg:       cfg,
		observer:  obs,
	}
}

// IngestRequest is one file to load into one meter.
type IngestRequest struct {
	MeterName string
	FileName  string

	Source io.Reader
	// Size is the source size in bytes, or a negative value if unknown.
	Size int64

	HasHeader bool
	Comma     rune
	Mapper    RowMapper

	// Params.MeterID is filled in by the service from MeterName.
	Params Params
}

// IngestResult summarizes an ingest. It is returned alongside the error
// for rejected and failed ingests.
type IngestResult struct {
	IngestID     string        `json:"ingestId"`
	MeterID      int64         `json:"meterId"`
	MeterName    string        `json:"meter"`
	FileName     string        `json:"fileName,omitempty"`
	Status       IngestStatus  `json:"status"`
	Rows         int           `json:"rows"`
	Processed    int           `json:"processed"`
	Accepted     int           `json:"accepted"`
	Dropped      int           `json:"dropped"`
	Written      int64         `json:"written"`
	AllAccepted  bool          `json:"allAccepted"`
	Diagnostics  string        `json:"diagnostics,omitempty"`
	MessagesLost int           `json:"messagesLost,omitempty"`
	BytesRead    int64         `json:"bytesRead"`
	Duration     time.Duration `json:"duration"`
	CommitTime   time.Duration `json:"commitTime"`
	Streamed     bool          `json:"streamed"`
	ErrKind      Kind          `json:"-"`
}

// Ingest reads, processes and commits one file. The meter is created on
// first use. Ingests for the same meter run one at a time.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()
	ingestID := uuid.New()
	ctx = logging.WithIngestID(ctx, ingestID.String())
	log := logging.WithFields(ctx, "meter", req.MeterName, "file", req.FileName)

	res := &IngestResult{
		IngestID:  ingestID.String(),
		MeterName: req.MeterName,
		FileName:  req.FileName,
		Status:    IngestFailed,
	}

	s.observer.IngestStarted()
	defer func() {
		res.Duration = time.Since(start)
		s.observer.IngestFinished(res)
	}()

	if req.MeterName == "" {
		return s.fail(res, configErrorf("meter name is required"))
	}
	if req.Mapper == nil {
		return s.fail(res, configErrorf("no row mapper configured for meter %q", req.MeterName))
	}
	if req.Source == nil {
		return s.fail(res, readErrorf(nil, "no source provided"))
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return s.fail(res, err)
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	meter, err := s.meters.EnsureMeter(ctx, req.MeterName)
	if err != nil {
		return s.fail(res, err)
	}
	res.MeterID = meter.ID

	p := req.Params
	p.MeterID = meter.ID
	if p.DiagnosticsLimit == 0 {
		p.DiagnosticsLimit = s.cfg.DiagnosticsLimit
	}
	if err := p.Validate(); err != nil {
		return s.fail(res, err)
	}

	unlock, err := s.locks.Lock(ctx, meter.ID)
	if err != nil {
		return s.fail(res, err)
	}
	defer unlock()

	// Re-read under the lock; a previous ingest may have just moved it.
	state, err := s.meters.GetMeterState(ctx, meter.ID)
	if err != nil {
		return s.fail(res, err)
	}

	log.Debug("ingest started", "meter_id", meter.ID, "cumulative", p.Cumulative, "end_only", p.EndOnly)

	candidates, err := s.readCandidates(ctx, req, res)
	if err != nil {
		log.Warn("read failed", "error", err, "bytes", res.BytesRead)
		return s.fail(res, err)
	}

	outcome := Process(candidates, p, state)
	res.Processed = outcome.Processed
	res.Accepted = len(outcome.Accepted)
	res.Dropped = outcome.Dropped
	res.AllAccepted = outcome.AllAccepted
	res.Diagnostics = outcome.Diagnostics
	res.MessagesLost = outcome.MessagesLost
	if outcome.MessagesLost > 0 {
		log.Warn("diagnostics truncated", "messages", outcome.Messages, "lost", outcome.MessagesLost)
	}

	rec := &IngestRecord{
		ID:           ingestID,
		MeterID:      meter.ID,
		FileName:     req.FileName,
		Source:       SourceFromContext(ctx),
		RowsAccepted: res.Accepted,
		AllAccepted:  outcome.AllAccepted,
	}

	if outcome.Rejected {
		res.Status = IngestRejected
		res.ErrKind = kindOf(outcome.Err)
		rec.Status = IngestRejected
		rec.Diagnostics = res.Diagnostics
		rec.Duration = time.Since(start)
		if err := s.meters.RecordIngest(ctx, *rec); err != nil {
			log.Warn("failed to record rejected ingest", "error", err)
		}
		log.Info("ingest rejected", "rows", res.Rows, "processed", res.Processed, "reason", outcome.Err)
		return res, outcome.Err
	}

	rec.Status = IngestCommitted
	rec.Diagnostics = res.Diagnostics

	commitStart := time.Now()
	cres, err := s.committer.Commit(ctx, s.db, outcome.Accepted, CommitModeFor(p.ShouldUpdate),
		UpdateMeterState(meter.ID, outcome.State),
		func(ctx context.Context, tx pgx.Tx) error {
			rec.Duration = time.Since(start)
			return RecordIngestTx(rec)(ctx, tx)
		},
	)
	res.CommitTime = time.Since(commitStart)
	if err != nil {
		res.Diagnostics = appendDiagnostic(res.Diagnostics, err.Error())
		rec.Status = IngestFailed
		rec.RowsWritten = 0
		rec.Diagnostics = res.Diagnostics
		rec.Duration = time.Since(start)
		// The commit transaction is gone; record the failure on its own.
		if rerr := s.meters.RecordIngest(context.WithoutCancel(ctx), *rec); rerr != nil {
			log.Warn("failed to record failed ingest", "error", rerr)
		}
		return s.fail(res, err)
	}

	res.Status = IngestCommitted
	res.Written = cres.Written
	log.Info("ingest committed",
		"meter_id", meter.ID,
		"rows", res.Rows,
		"accepted", res.Accepted,
		"dropped", res.Dropped,
		"written", res.Written,
		"flushes", cres.Flushes,
		"all_accepted", res.AllAccepted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// readCandidates reads and maps every row of the source. Large or unsized
// sources are mapped while streaming so their raw text is never held.
func (s *Service) readCandidates(ctx context.Context, req IngestRequest, res *IngestResult) ([]MappedCandidate, error) {
	opts := ReaderOptions{Comma: req.Comma, Lenient: s.cfg.Lenient, Size: req.Size}
	if opts.Size < 0 {
		opts.Size = 0
	}

	headerLines := 0
	if req.HasHeader {
		headerLines = 1
	}

	res.Streamed = req.Size < 0 || req.Size >= s.cfg.StreamingThreshold
	if !res.Streamed {
		rows, err := ReadRows(req.Source, req.HasHeader, opts)
		if err != nil {
			return nil, err
		}
		res.Rows = len(rows)
		res.BytesRead = req.Size
		out := make([]MappedCandidate, 0, len(rows))
		for i, row := range rows {
			if i%contextCheckInterval == 0 && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c, err := req.Mapper(row)
			if err != nil {
				return nil, readErrorf(err, "could not map line %d", i+1+headerLines)
			}
			out = append(out, c)
		}
		return out, nil
	}

	rr := NewRowReader(req.Source, req.HasHeader, opts)
	var out []MappedCandidate
	for {
		if res.Rows%contextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := rr.Next()
		res.BytesRead = rr.BytesRead()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		res.Rows++
		c, err := req.Mapper(row)
		if err != nil {
			return nil, readErrorf(err, "could not map line %d", rr.Line())
		}
		out = append(out, c)
	}
}

func (s *Service) fail(res *IngestResult, err error) (*IngestResult, error) {
	res.Status = IngestFailed
	res.ErrKind = kindOf(err)
	if res.Diagnostics == "" {
		res.Diagnostics = err.Error()
	}
	return res, err
}

// History returns recent ingests of the named meter.
func (s *Service) History(ctx context.Context, meterName string, limit int) ([]IngestRecord, error) {
	meter, err := s.meters.MeterByName(ctx, meterName)
	if err != nil {
		return nil, err
	}
	return s.meters.IngestHistory(ctx, meter.ID, limit)
}

// Readings returns stored readings of the named meter starting in [from, to).
func (s *Service) Readings(ctx context.Context, meterName string, from, to time.Time) ([]Reading, error) {
	meter, err := s.meters.MeterByName(ctx, meterName)
	if err != nil {
		return nil, err
	}
	return ListReadings(ctx, s.db, meter.ID, from, to)
}

// Meter returns the named meter and its persisted state.
func (s *Service) Meter(ctx context.Context, meterName string) (Meter, error) {
	return s.meters.MeterByName(ctx, meterName)
}

// LimiterStatus reports ingest slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Drain waits for running ingests to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func appendDiagnostic(diag, msg string) string {
	if diag == "" {
		return msg
	}
	return fmt.Sprintf("%s\n%s", diag, msg)
}
