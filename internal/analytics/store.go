// Package analytics persists execution records to SQLite so capability
// usage can be inspected across process restarts. The store is an
// optional sink; the invocation path never depends on it.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclight-ai/capd/internal/exec"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_records (
	id          TEXT PRIMARY KEY,
	capability  TEXT NOT NULL,
	profile     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	cache_hit   INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_execution_records_capability
	ON execution_records(capability, started_at);
`

// Store is a SQLite-backed execution history.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the analytics database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate analytics db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one execution record. Implements exec.Sink.
func (s *Store) Record(ctx context.Context, rec exec.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_records
			(id, capability, profile, started_at, duration_ms, cache_hit, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Capability, rec.Profile, formatTime(rec.StartedAt),
		float64(rec.Duration)/float64(time.Millisecond),
		boolToInt(rec.CacheHit), string(rec.Outcome), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// Reset deletes all recorded history and returns how many records were
// removed.
func (s *Store) Reset(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_records`)
	if err != nil {
		return 0, fmt.Errorf("reset execution records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset execution records: %w", err)
	}
	return n, nil
}

// Metrics aggregates one capability's recorded history.
type Metrics struct {
	Capability    string     `json:"capability"`
	Total         int64      `json:"total"`
	Succeeded     int64      `json:"succeeded"`
	Failed        int64      `json:"failed"`
	SuccessRate   float64    `json:"success_rate"`
	AvgDurationMS float64    `json:"avg_duration_ms"`
	MinDurationMS float64    `json:"min_duration_ms"`
	MaxDurationMS float64    `json:"max_duration_ms"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
}

// ToolMetrics aggregates records for one capability since the cutoff.
func (s *Store) ToolMetrics(ctx context.Context, capability string, since time.Time) (Metrics, error) {
	m := Metrics{Capability: capability}

	// Aggregates come back from the driver as strings; scan into a
	// NullString and parse rather than relying on driver time support.
	var lastUsed sql.NullString
	var avgMS, minMS, maxMS sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome != 'failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END), 0),
			AVG(duration_ms), MIN(duration_ms), MAX(duration_ms), MAX(started_at)
		 FROM execution_records
		 WHERE capability = ? AND started_at >= ?`,
		capability, formatTime(since),
	).Scan(&m.Total, &m.Succeeded, &m.Failed, &avgMS, &minMS, &maxMS, &lastUsed)
	if err != nil {
		return Metrics{}, fmt.Errorf("query tool metrics: %w", err)
	}

	if m.Total > 0 {
		m.SuccessRate = float64(m.Succeeded) / float64(m.Total)
	}
	m.AvgDurationMS = avgMS.Float64
	m.MinDurationMS = minMS.Float64
	m.MaxDurationMS = maxMS.Float64
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		m.LastUsed = &t
	}
	return m, nil
}

// UsageCount pairs a capability with how often it ran.
type UsageCount struct {
	Capability string `json:"capability"`
	Count      int64  `json:"count"`
}

// TopCapabilities returns the most-invoked capabilities since the
// cutoff, busiest first.
func (s *Store) TopCapabilities(ctx context.Context, since time.Time, limit int) ([]UsageCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT capability, COUNT(*) AS n
		 FROM execution_records
		 WHERE started_at >= ?
		 GROUP BY capability
		 ORDER BY n DESC, capability ASC
		 LIMIT ?`,
		formatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top capabilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UsageCount
	for rows.Next() {
		var uc UsageCount
		if err := rows.Scan(&uc.Capability, &uc.Count); err != nil {
			return nil, fmt.Errorf("scan top capabilities: %w", err)
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as RFC3339 UTC strings so lexical comparison in
// SQL matches chronological order.
const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
