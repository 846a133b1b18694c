// Package progress aggregates per-profile worker updates into consistent
// snapshots for polling clients.
package progress

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/models"
)

// Snapshot is a point-in-time copy of the aggregate progress.
type Snapshot struct {
	CompletedCount  int
	ProcessingCount int
	FailedCount     int
	PendingRecords  int
	TotalDiscovered int
	Records         []models.ProfileRecord
}

// Change describes what an Upsert did to the stored record.
type Change struct {
	Record           models.ProfileRecord
	Inserted         bool
	From             models.ProfileStatus
	Advanced         bool
	EnteredCompleted bool
}

// Store is the table of profile records. Upsert must be called from a single
// ingest path; Snapshot may be called concurrently from any number of readers.
type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*models.ProfileRecord
	counts  map[models.ProfileStatus]int
	nextID  int
	clock   func() time.Time
}

// NewStore creates an empty progress store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*models.ProfileRecord),
		counts:  make(map[models.ProfileStatus]int),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// NextID returns a sequential id ("1", "2", ...) not yet used in the store.
func (s *Store) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.nextID++
		id := strconv.Itoa(s.nextID)
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

// Upsert inserts a new record or advances an existing one.
//
// Status only moves forward (pending < processing < completed|failed).
// A regression is ignored and reported with ErrStatusRegression; conflicting
// name or url values overwrite the stored ones and are reported with
// ErrFieldConflict. Both are non-fatal: the returned Change is always valid.
func (s *Store) Upsert(u models.ProfileUpdate) (Change, error) {
	if u.ID == "" {
		return Change{}, fmt.Errorf("%w: missing profile id", faults.ErrInvalidEvent)
	}
	if u.Status != "" && !u.Status.Valid() {
		return Change{}, fmt.Errorf("%w: unknown status %q", faults.ErrInvalidEvent, u.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var faultErrs []error

	rec, ok := s.records[u.ID]
	ch := Change{}
	if !ok {
		rec = &models.ProfileRecord{
			ID:        u.ID,
			Name:      u.Name,
			URL:       u.URL,
			Status:    models.ProfileStatusPending,
			UpdatedAt: now,
		}
		s.records[u.ID] = rec
		s.order = append(s.order, u.ID)
		s.counts[models.ProfileStatusPending]++
		ch.Inserted = true
	} else {
		if u.Name != "" && rec.Name != "" && u.Name != rec.Name {
			faultErrs = append(faultErrs, fmt.Errorf("%w: id %s name %q -> %q", faults.ErrFieldConflict, u.ID, rec.Name, u.Name))
		}
		if u.URL != "" && rec.URL != "" && u.URL != rec.URL {
			faultErrs = append(faultErrs, fmt.Errorf("%w: id %s url %q -> %q", faults.ErrFieldConflict, u.ID, rec.URL, u.URL))
		}
		if u.Name != "" {
			rec.Name = u.Name
		}
		if u.URL != "" {
			rec.URL = u.URL
		}
		rec.UpdatedAt = now
	}
	ch.From = rec.Status

	switch {
	case u.Status == "" || u.Status == rec.Status:
		if u.Message != "" {
			rec.Message = u.Message
		}
	case u.Status.Rank() > rec.Status.Rank():
		s.counts[rec.Status]--
		s.counts[u.Status]++
		rec.Status = u.Status
		if u.Message != "" {
			rec.Message = u.Message
		}
		ch.Advanced = true
		ch.EnteredCompleted = u.Status == models.ProfileStatusCompleted
	default:
		faultErrs = append(faultErrs, fmt.Errorf("%w: id %s %s -> %s", faults.ErrStatusRegression, u.ID, rec.Status, u.Status))
	}

	ch.Record = *rec
	return ch, errors.Join(faultErrs...)
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (models.ProfileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.ProfileRecord{}, false
	}
	return *rec, true
}

// Snapshot copies counters and records under one read lock, so readers never
// see a counter that disagrees with the record list.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]models.ProfileRecord, len(s.order))
	for i, id := range s.order {
		recs[i] = *s.records[id]
	}
	return Snapshot{
		CompletedCount:  s.counts[models.ProfileStatusCompleted],
		ProcessingCount: s.counts[models.ProfileStatusProcessing],
		FailedCount:     s.counts[models.ProfileStatusFailed],
		PendingRecords:  s.counts[models.ProfileStatusPending],
		TotalDiscovered: len(s.order),
		Records:         recs,
	}
}

// PendingCount is the number of profiles still expected to reach processing
// or completed: needed - (completed + processing), clamped at zero.
func PendingCount(needed int, snap Snapshot) int {
	n := needed - (snap.CompletedCount + snap.ProcessingCount)
	if n < 0 {
		return 0
	}
	return n
}
