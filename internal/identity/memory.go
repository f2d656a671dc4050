package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same assignment semantics
// as SQLiteStore but no durability. Intended for tests and dry runs.
type MemoryStore struct {
	window    time.Duration
	tolerance float64

	mu      sync.Mutex
	records map[string]*memRecord
	counter int64
}

type memRecord struct {
	seq       int64
	firstSeen time.Time
	lastSeen  time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(window time.Duration, toleranceDeg float64) (*MemoryStore, error) {
	if window <= 0 {
		return nil, errors.New("validity window must be positive")
	}
	if toleranceDeg <= 0 {
		return nil, errors.New("spatial tolerance must be positive")
	}
	return &MemoryStore{
		window:    window,
		tolerance: toleranceDeg,
		records:   make(map[string]*memRecord),
	}, nil
}

func (s *MemoryStore) Assign(ctx context.Context, lat, lon float64, obsTime time.Time) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := Fingerprint(lat, lon, s.tolerance)
	if rec, ok := s.records[fp]; ok && absDuration(obsTime.Sub(rec.lastSeen)) <= s.window {
		if obsTime.After(rec.lastSeen) {
			rec.lastSeen = obsTime
		}
		return Identity{
			Sequence:  rec.seq,
			ID:        renderID(rec.firstSeen, rec.seq),
			FirstSeen: rec.firstSeen,
			LastSeen:  rec.lastSeen,
		}, nil
	}

	// Issue a new identifier. An expired record under the same
	// fingerprint is replaced; its sequence number is never reused.
	s.counter++
	rec := &memRecord{seq: s.counter, firstSeen: obsTime, lastSeen: obsTime}
	s.records[fp] = rec

	return Identity{
		Sequence:  rec.seq,
		ID:        renderID(rec.firstSeen, rec.seq),
		New:       true,
		FirstSeen: rec.firstSeen,
		LastSeen:  rec.lastSeen,
	}, nil
}

func (s *MemoryStore) Prune(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	removed := 0
	for fp, rec := range s.records {
		if rec.lastSeen.Before(cutoff) {
			delete(s.records, fp)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
