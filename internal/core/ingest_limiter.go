package core

// ingest_limiter.go bounds ingest concurrency.
//
// IngestLimiter is a semaphore over all ingests: at most maxConcurrent run at
// once and the rest wait up to maxWait before failing with
// ErrTooManyIngests. MeterLocks serializes ingests that target the same
// meter, since each one reads and rewrites that meter's state.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyIngests is returned when no slot frees up within the wait time.
var ErrTooManyIngests = errors.New("too many ingests in progress, please try again later")

const (
	DefaultMaxConcurrentIngests = 5
	DefaultMaxWaitTime          = 30 * time.Second
)

// IngestLimiter caps the number of ingests running at once.
type IngestLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
}

// NewIngestLimiter allows maxConcurrent ingests; others wait up to maxWait.
func NewIngestLimiter(maxConcurrent int, maxWait time.Duration) *IngestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIngests
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &IngestLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. Callers must Release it exactly once.
func (l *IngestLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyIngests
	}
}

// Release returns a slot taken by Acquire.
func (l *IngestLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// Active returns the number of ingests holding a slot.
func (l *IngestLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Capacity returns the configured maximum.
func (l *IngestLimiter) Capacity() int { return cap(l.slots) }

// WaitForDrain blocks until no ingest is running, for graceful shutdown.
func (l *IngestLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot for the health endpoint.
type LimiterStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// Status returns the current limiter state.
func (l *IngestLimiter) Status() LimiterStatus {
	active := l.Active()
	return LimiterStatus{
		Active:    active,
		Available: cap(l.slots) - len(l.slots),
		Capacity:  cap(l.slots),
	}
}

// MeterLocks hands out one lock per meter ID.
type MeterLocks struct {
	mu    sync.Mutex
	locks map[int64]*meterLock
}

type meterLock struct {
	ch   chan struct{}
	refs int
}

// NewMeterLocks returns an empty lock table.
func NewMeterLocks() *MeterLocks {
	return &MeterLocks{locks: make(map[int64]*meterLock)}
}

// Lock blocks until meterID is free or ctx is done. The returned function
// unlocks it.
func (m *MeterLocks) Lock(ctx context.Context, meterID int64) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[meterID]
	if !ok {
		l = &meterLock{ch: make(chan struct{}, 1)}
		m.locks[meterID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.unref(meterID, l)
		}, nil
	case <-ctx.Done():
		m.unref(meterID, l)
		return nil, ctx.Err()
	}
}

func (m *MeterLocks) unref(meterID int64, l *meterLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, meterID)
	}
}

// Held returns the number of meters with a holder or waiter.
func (m *MeterLocks) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
