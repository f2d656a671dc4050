package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored
// timestamps order lexicographically, which the prune DELETE relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS detection_ids (
    fingerprint TEXT PRIMARY KEY,
    seq         INTEGER NOT NULL,
    first_seen  TEXT NOT NULL,
    last_seen   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS detection_ids_last_seen ON detection_ids(last_seen);
CREATE TABLE IF NOT EXISTS id_counter (
    k   INTEGER PRIMARY KEY CHECK (k = 0),
    seq INTEGER NOT NULL
);
INSERT OR IGNORE INTO id_counter(k, seq) VALUES (0, 0);
`

// SQLiteStore is the persistent Store implementation, one database file
// per deployment. Writes go through SQLite transactions, so a crash
// between lookup and write can never leave the issuance counter
// inconsistent with the stored records.
type SQLiteStore struct {
	db        *sql.DB
	window    time.Duration
	tolerance float64
	logger    *slog.Logger

	// mu serializes the lookup-or-issue sequence. Two concurrent
	// detections of the same fire must not both see "not found".
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the identity database at path and applies
// the schema. An unreadable or corrupt database is an error: identifier
// stability cannot be guaranteed, so the operator must repair or reset
// the file explicitly. Individual rows with unparsable timestamps are
// discarded with a warning instead.
func OpenSQLite(path string, window time.Duration, toleranceDeg float64, logger *slog.Logger) (*SQLiteStore, error) {
	if window <= 0 {
		return nil, errors.New("validity window must be positive")
	}
	if toleranceDeg <= 0 {
		return nil, errors.New("spatial tolerance must be positive")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open identity cache: %w", err)
	}

	// WAL keeps the frequent small writes cheap and crash-safe.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("identity cache unusable: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply identity cache schema: %w", err)
	}

	s := &SQLiteStore{db: db, window: window, tolerance: toleranceDeg, logger: logger}

	if err := s.salvage(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// salvage scans the stored records, discarding any with unparsable
// timestamps so a partially damaged cache does not block startup.
func (s *SQLiteStore) salvage() error {
	rows, err := s.db.Query(`SELECT fingerprint, first_seen, last_seen FROM detection_ids`)
	if err != nil {
		return fmt.Errorf("identity cache unreadable: %w", err)
	}
	defer rows.Close()

	var bad []string
	for rows.Next() {
		var fp, first, last string
		if err := rows.Scan(&fp, &first, &last); err != nil {
			return fmt.Errorf("identity cache unreadable: %w", err)
		}
		if _, err := time.Parse(time.RFC3339Nano, first); err != nil {
			bad = append(bad, fp)
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, last); err != nil {
			bad = append(bad, fp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("identity cache unreadable: %w", err)
	}

	for _, fp := range bad {
		s.logger.Warn("discarding unreadable identity record", "fingerprint", fp)
		if _, err := s.db.Exec(`DELETE FROM detection_ids WHERE fingerprint = ?`, fp); err != nil {
			return fmt.Errorf("discard unreadable identity record: %w", err)
		}
	}

	return nil
}

// Assign implements Store. The whole lookup-or-issue sequence runs inside
// one transaction; a transient failure is retried once before being
// surfaced, since a duplicate notification is preferable to a lost one.
func (s *SQLiteStore) Assign(ctx context.Context, lat, lon float64, obsTime time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.assign(ctx, lat, lon, obsTime)
	if err != nil {
		s.logger.Warn("identity assignment failed, retrying once", "error", err)
		id, err = s.assign(ctx, lat, lon, obsTime)
	}
	return id, err
}

func (s *SQLiteStore) assign(ctx context.Context, lat, lon float64, obsTime time.Time) (Identity, error) {
	fp := Fingerprint(lat, lon, s.tolerance)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("begin identity transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		seq      int64
		firstRaw string
		lastRaw  string
		found    = true
	)
	err = tx.QueryRowContext(ctx,
		`SELECT seq, first_seen, last_seen FROM detection_ids WHERE fingerprint = ?`, fp).
		Scan(&seq, &firstRaw, &lastRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		found = false
	case err != nil:
		return Identity{}, fmt.Errorf("identity lookup: %w", err)
	}

	if found {
		firstSeen, err := time.Parse(time.RFC3339Nano, firstRaw)
		if err != nil {
			return Identity{}, fmt.Errorf("identity record corrupt: %w", err)
		}
		lastSeen, err := time.Parse(time.RFC3339Nano, lastRaw)
		if err != nil {
			return Identity{}, fmt.Errorf("identity record corrupt: %w", err)
		}

		// The window is measured between absolute timestamps. Same
		// calendar day is irrelevant; passes straddle midnight.
		if absDuration(obsTime.Sub(lastSeen)) <= s.window {
			newLast := lastSeen
			if obsTime.After(lastSeen) {
				newLast = obsTime
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE detection_ids SET last_seen = ? WHERE fingerprint = ?`,
				newLast.UTC().Format(timeLayout), fp); err != nil {
				return Identity{}, fmt.Errorf("update identity last-seen: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return Identity{}, fmt.Errorf("commit identity update: %w", err)
			}
			return Identity{
				Sequence:  seq,
				ID:        renderID(firstSeen, seq),
				New:       false,
				FirstSeen: firstSeen,
				LastSeen:  newLast,
			}, nil
		}
		// Expired: the fingerprint is free to be recycled for a new,
		// unrelated event at this location. The sequence still advances.
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE id_counter SET seq = seq + 1 WHERE k = 0 RETURNING seq`).Scan(&next); err != nil {
		return Identity{}, fmt.Errorf("advance identity counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO detection_ids (fingerprint, seq, first_seen, last_seen)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		     seq = excluded.seq, first_seen = excluded.first_seen, last_seen = excluded.last_seen`,
		fp, next,
		obsTime.UTC().Format(timeLayout),
		obsTime.UTC().Format(timeLayout)); err != nil {
		return Identity{}, fmt.Errorf("insert identity record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Identity{}, fmt.Errorf("commit identity insert: %w", err)
	}

	return Identity{
		Sequence:  next,
		ID:        renderID(obsTime, next),
		New:       true,
		FirstSeen: obsTime,
		LastSeen:  obsTime,
	}, nil
}

// Prune implements Store, removing records outside the validity window.
// The issuance counter is never rewound, so pruned sequences are not reissued.
func (s *SQLiteStore) Prune(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM detection_ids WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune identity cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close flushes and closes the backing database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
