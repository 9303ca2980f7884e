// Package db stores sonar sessions and readings in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/sonar/internal/sonar"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema. The migrate subcommand uses it.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL with a single writer connection avoids SQLITE_BUSY from the sink.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// StoredReading is a reading as persisted, tagged with its session.
type StoredReading struct {
	SessionID string `json:"session_id"`
	sonar.Reading
}

// RecordReading inserts one reading for a session.
func (db *DB) RecordReading(ctx context.Context, sessionID string, r sonar.Reading) error {
	return insertReadings(ctx, db.DB, sessionID, []sonar.Reading{r})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertReadings(ctx context.Context, ex execer, sessionID string, rs []sonar.Reading) error {
	for _, r := range rs {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO readings (
				session_id, timestamp_ns, sequence, elapsed_ticks, distance_m,
				valid, min_distance_m, max_distance_m, sensor_type
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, r.Timestamp.UnixNano(), r.Sequence, r.ElapsedTicks, r.Distance,
			r.Valid, r.MinDistance, r.MaxDistance, string(r.Type),
		)
		if err != nil {
			return fmt.Errorf("insert reading seq=%d: %w", r.Sequence, err)
		}
	}
	return nil
}

// ReadingQuery filters reading lookups. Zero fields do not filter.
type ReadingQuery struct {
	SessionID string
	Since     time.Time
	Until     time.Time
	ValidOnly bool
	// Limit caps the number of rows; zero means DefaultReadingLimit.
	Limit int
}

const (
	DefaultReadingLimit = 1000
	MaxReadingLimit     = 100000
)

func (q ReadingQuery) where() (string, []any) {
	var conds []string
	var args []any
	if q.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp_ns >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "timestamp_ns < ?")
		args = append(args, q.Until.UnixNano())
	}
	if q.ValidOnly {
		conds = append(conds, "valid = 1")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q ReadingQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultReadingLimit
	case q.Limit > MaxReadingLimit:
		return MaxReadingLimit
	default:
		return q.Limit
	}
}

// Readings returns the most recent readings matching q, oldest first.
func (db *DB) Readings(ctx context.Context, q ReadingQuery) ([]StoredReading, error) {
	where, args := q.where()
	args = append(args, q.limit())
	rows, err := db.QueryContext(ctx, `SELECT * FROM (
			SELECT session_id, timestamp_ns, sequence, elapsed_ticks, distance_m,
				valid, min_distance_m, max_distance_m, sensor_type
			FROM readings`+where+`
			ORDER BY timestamp_ns DESC, reading_id DESC LIMIT ?
		) ORDER BY timestamp_ns ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestReading returns the newest stored reading.
func (db *DB) LatestReading(ctx context.Context) (StoredReading, error) {
	row := db.QueryRowContext(ctx, `SELECT session_id, timestamp_ns, sequence, elapsed_ticks, distance_m,
			valid, min_distance_m, max_distance_m, sensor_type
		FROM readings ORDER BY timestamp_ns DESC, reading_id DESC LIMIT 1`)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredReading{}, fmt.Errorf("latest reading: %w", ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (StoredReading, error) {
	var (
		r      StoredReading
		tsNs   int64
		sensor string
	)
	if err := s.Scan(&r.SessionID, &tsNs, &r.Sequence, &r.ElapsedTicks, &r.Distance,
		&r.Valid, &r.MinDistance, &r.MaxDistance, &sensor); err != nil {
		return StoredReading{}, err
	}
	r.Timestamp = time.Unix(0, tsNs).UTC()
	r.Type = sonar.SensorType(sensor)
	return r, nil
}
