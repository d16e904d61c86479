// Package archive persists one row per ledger run in sqlite so multi-day
// summaries survive rotation of the output files.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/qledger/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS day_records (
	date_utc TEXT NOT NULL,
	ledger_sequence INTEGER NOT NULL,
	regime TEXT NOT NULL,
	rationale TEXT NOT NULL,
	sessions_total INTEGER NOT NULL,
	single_hit_ratio REAL NOT NULL,
	mean_hits_per_session REAL NOT NULL,
	distinct_paths_total INTEGER NOT NULL,
	hash TEXT NOT NULL,
	previous_hash TEXT,
	top_revisits TEXT NOT NULL,
	entry_compliance_rate REAL,
	constraint_touch_rate REAL,
	escape_rate REAL,
	sequence_fidelity REAL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (date_utc, ledger_sequence)
);
`

// DayRecord is one archived ledger run.
type DayRecord struct {
	DateUTC             string            `json:"date_utc"`
	LedgerSequence      int               `json:"ledger_sequence"`
	Regime              string            `json:"regime"`
	Rationale           string            `json:"rationale"`
	SessionsTotal       int               `json:"sessions_total"`
	SingleHitRatio      float64           `json:"single_hit_ratio"`
	MeanHitsPerSession  float64           `json:"mean_hits_per_session"`
	DistinctPathsTotal  int               `json:"distinct_paths_total"`
	Hash                string            `json:"hash"`
	PreviousHash        *string           `json:"previous_hash"`
	TopRevisits         []types.PathCount `json:"top_revisits"`
	EntryComplianceRate *float64          `json:"entry_compliance_rate"`
	ConstraintTouchRate *float64          `json:"constraint_touch_rate"`
	EscapeRate          *float64          `json:"escape_rate"`
	SequenceFidelity    *float64          `json:"sequence_fidelity"`
	CreatedAt           string            `json:"created_at"`
}

// Store wraps the sqlite archive database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordRun archives one ledger run. Re-running the same sequence for the
// same day replaces the existing row.
func (s *Store) RecordRun(ctx context.Context, m types.LegacyMetrics, rates types.QMetricsRates, now time.Time) error {
	top, err := json.Marshal(m.TopRevisits)
	if err != nil {
		return err
	}
	date := now.UTC().Format("2006-01-02")
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO day_records (
	date_utc, ledger_sequence, regime, rationale,
	sessions_total, single_hit_ratio, mean_hits_per_session, distinct_paths_total,
	hash, previous_hash, top_revisits,
	entry_compliance_rate, constraint_touch_rate, escape_rate, sequence_fidelity,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		date, m.LedgerSequence, m.Regime, m.RegimeRationale,
		m.SessionsTotal, m.SingleHitRatio, m.MeanHitsPerSession, m.DistinctPathsTotal,
		m.Hash, m.PreviousHash, string(top),
		rates.EntryComplianceRate, rates.ConstraintTouchRate, rates.EscapeRate, rates.SequenceFidelity,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LatestPerDay returns, for each of the most recent days (up to the given
// count), the record with the highest ledger sequence, oldest day first.
func (s *Store) LatestPerDay(ctx context.Context, days int) ([]DayRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT d.date_utc, d.ledger_sequence, d.regime, d.rationale,
	d.sessions_total, d.single_hit_ratio, d.mean_hits_per_session, d.distinct_paths_total,
	d.hash, d.previous_hash, d.top_revisits,
	d.entry_compliance_rate, d.constraint_touch_rate, d.escape_rate, d.sequence_fidelity,
	d.created_at
FROM day_records d
JOIN (
	SELECT date_utc, MAX(ledger_sequence) AS max_seq
	FROM day_records
	GROUP BY date_utc
	ORDER BY date_utc DESC
	LIMIT ?
) latest ON d.date_utc = latest.date_utc AND d.ledger_sequence = latest.max_seq
ORDER BY d.date_utc ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("query day records: %w", err)
	}
	defer rows.Close()

	var out []DayRecord
	for rows.Next() {
		var r DayRecord
		var top string
		if err := rows.Scan(
			&r.DateUTC, &r.LedgerSequence, &r.Regime, &r.Rationale,
			&r.SessionsTotal, &r.SingleHitRatio, &r.MeanHitsPerSession, &r.DistinctPathsTotal,
			&r.Hash, &r.PreviousHash, &top,
			&r.EntryComplianceRate, &r.ConstraintTouchRate, &r.EscapeRate, &r.SequenceFidelity,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(top), &r.TopRevisits); err != nil {
			return nil, fmt.Errorf("decode top_revisits for %s: %w", r.DateUTC, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
