// Package incident owns incident records and their lifecycle. The
// ledger is the only component that creates, refreshes, or resolves
// incidents, and it enforces the dedup invariant: at most one OPEN
// incident per (segment, type) key.
package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/models"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

var (
	// ErrNotFound is returned for operations on unknown incidents.
	ErrNotFound = errors.New("incident not found")
	// ErrAlreadyResolved is returned when resolving a resolved
	// incident. Resolution is deliberately not idempotent-silent;
	// the caller must be told.
	ErrAlreadyResolved = errors.New("incident already resolved")
)

// CreateHook is invoked once per created incident, on the caller's
// goroutine, after the incident is durably stored. The create
// transition is the single handoff point to enrichment and event
// publishing; hooks receive the readings window behind the verdict
// and must not block.
type CreateHook func(ctx context.Context, incident *models.Incident, window detection.SegmentReadings)

// Stats tracks ledger counters using atomics for lock-free reads.
type Stats struct {
	Created   atomic.Int64
	Refreshed atomic.Int64
	Resolved  atomic.Int64
}

// Ledger applies rule verdicts to incident state. The create-or-
// refresh decision is serialized per (segment, type) key; different
// keys proceed fully in parallel and no global lock is taken.
type Ledger struct {
	incidents storage.IncidentRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	onCreate []CreateHook
	stats    Stats
}

// NewLedger creates a ledger over the given incident repository.
func NewLedger(incidents storage.IncidentRepository) *Ledger {
	return &Ledger{
		incidents: incidents,
		locks:     make(map[string]*sync.Mutex),
	}
}

// OnCreate registers a hook invoked for every created incident.
// Not safe to call concurrently with Apply.
func (l *Ledger) OnCreate(hook CreateHook) {
	l.onCreate = append(l.onCreate, hook)
}

// Stats returns the ledger counters.
func (l *Ledger) Stats() *Stats {
	return &l.stats
}

// keyLock returns the mutex serializing one dedup key. Locks are
// never removed; the key space is bounded by segments x types.
func (l *Ledger) keyLock(segmentID int64, typ models.IncidentType) *sync.Mutex {
	key := fmt.Sprintf("%d/%s", segmentID, typ)

	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Apply transitions incident state for one verdict. A triggered
// verdict either creates a new OPEN incident (returned non-nil) or
// refreshes the existing one's updated_at. Untriggered verdicts are
// no-ops: an open incident stays open until an operator resolves it,
// so noisy sensors cannot flap incidents closed.
func (l *Ledger) Apply(ctx context.Context, verdict detection.Verdict, window detection.SegmentReadings, now time.Time) (*models.Incident, error) {
	if !verdict.Triggered {
		return nil, nil
	}

	lock := l.keyLock(verdict.SegmentID, verdict.Type)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.incidents.GetOpenByKey(ctx, verdict.SegmentID, verdict.Type)
	if err != nil {
		return nil, fmt.Errorf("lookup open incident: %w", err)
	}

	if existing != nil {
		// updated_at must be monotonically non-decreasing across
		// refreshes even if batches arrive slightly out of order.
		at := now
		if at.Before(existing.UpdatedAt) {
			at = existing.UpdatedAt
		}
		if err := l.incidents.Touch(ctx, existing.ID, at); err != nil {
			return nil, fmt.Errorf("refresh incident: %w", err)
		}
		l.stats.Refreshed.Add(1)
		return nil, nil
	}

	incident := models.NewIncident(verdict.SegmentID, verdict.Type, verdict.Rule, verdict.Severity, now)
	if err := l.incidents.Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	l.stats.Created.Add(1)

	for _, hook := range l.onCreate {
		hook(ctx, incident, window)
	}
	return incident, nil
}

// Resolve transitions an OPEN incident to RESOLVED with an optional
// operator note. A resolved incident is immutable afterwards apart
// from late-arriving enrichment fields.
func (l *Ledger) Resolve(ctx context.Context, id string, note string, now time.Time) (*models.Incident, error) {
	incident, err := l.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup incident: %w", err)
	}
	if incident == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if incident.Resolved() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}

	if err := l.incidents.MarkResolved(ctx, id, note, now); err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}
	l.stats.Resolved.Add(1)

	incident.Status = models.IncidentStatusResolved
	incident.ResolutionNote = note
	incident.UpdatedAt = now
	return incident, nil
}
