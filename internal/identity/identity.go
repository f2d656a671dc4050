// Package identity assigns stable identifiers to fire detections across
// satellite passes. Repeated detections of the same physical fire within
// the validity window share one identifier; the mapping survives process
// restarts and UTC-day boundaries.
package identity

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Identity is the assignment result for one detection.
type Identity struct {
	// Sequence is the monotonically issued numeric identifier. It is
	// process-wide, persisted, and never reused while a live record
	// holds it.
	Sequence int64
	// ID is the rendered identifier, <first-seen UTC date>-<sequence>,
	// e.g. "20230616-4". It is stable for the lifetime of the record.
	ID string
	// New is true when this assignment issued a fresh identifier.
	New       bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// Store maps spatial fingerprints to stable detection identifiers.
// Assign must serialize concurrent calls for the same fingerprint; both
// implementations serialize globally, which is sufficient for the batch
// sizes involved. Assignments must be durable before Assign returns.
type Store interface {
	// Assign looks up the fingerprint for the given position and either
	// reuses a live identifier (updating last-seen) or issues a new one.
	Assign(ctx context.Context, lat, lon float64, obsTime time.Time) (Identity, error)

	// Prune removes records whose last-seen timestamp is older than the
	// validity window relative to now, and returns how many were removed.
	Prune(ctx context.Context, now time.Time) (int, error)

	Close() error
}

// Fingerprint quantizes a position to the spatial tolerance. Positions
// closer than the tolerance collapse to the same key, absorbing
// geolocation jitter between passes; positions further apart stay
// distinct. The acquisition time deliberately stays out of the key: the
// temporal side of identity matching is the validity window applied to
// the record's absolute last-seen timestamp, never a calendar-day
// comparison.
func Fingerprint(lat, lon, toleranceDeg float64) string {
	return fmt.Sprintf("%d:%d",
		int64(math.Round(lat/toleranceDeg)),
		int64(math.Round(lon/toleranceDeg)))
}

func renderID(firstSeen time.Time, seq int64) string {
	return fmt.Sprintf("%s-%d", firstSeen.UTC().Format("20060102"), seq)
}
