package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sonar/internal/sonar"
)

// Session is one run of the sampling loop. Readings reference the session
// that produced them.
type Session struct {
	ID                 string       `json:"session_id"`
	StartedAt          time.Time    `json:"started_at"`
	EndedAt            *time.Time   `json:"ended_at,omitempty"`
	Backend            string       `json:"backend"`
	SensorType         string       `json:"sensor_type"`
	Config             sonar.Config `json:"config"`
	ReadingCount       int64        `json:"reading_count"`
	WatchdogRecoveries int64        `json:"watchdog_recoveries"`
	PublishErrors      int64        `json:"publish_errors"`
}

// StartSession records a new session and returns it with a fresh ID.
func (db *DB) StartSession(ctx context.Context, backend string, cfg sonar.Config, at time.Time) (*Session, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode session config: %w", err)
	}
	s := &Session{
		ID:         uuid.New().String(),
		StartedAt:  at.UTC(),
		Backend:    backend,
		SensorType: string(cfg.SensorType),
		Config:     cfg,
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_ns, backend, sensor_type, config_json)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.UnixNano(), s.Backend, s.SensorType, string(cfgJSON))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time and final counters on a session.
func (db *DB) EndSession(ctx context.Context, id string, at time.Time, st sonar.Status) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET ended_ns = ?, watchdog_recoveries = ?, publish_errors = ?,
			reading_count = (SELECT COUNT(*) FROM readings WHERE session_id = ?)
		 WHERE session_id = ?`,
		at.UnixNano(), st.WatchdogRecoveries, st.PublishErrors, id, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession looks up a session by ID.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := db.QueryRowContext(ctx, sessionSelect+` WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, sessionSelect+` ORDER BY started_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const sessionSelect = `SELECT session_id, started_ns, ended_ns, backend, sensor_type, config_json,
	reading_count, watchdog_recoveries, publish_errors FROM sessions`

func scanSession(s scanner) (*Session, error) {
	var (
		out       Session
		startedNs int64
		endedNs   sql.NullInt64
		cfgJSON   string
	)
	if err := s.Scan(&out.ID, &startedNs, &endedNs, &out.Backend, &out.SensorType, &cfgJSON,
		&out.ReadingCount, &out.WatchdogRecoveries, &out.PublishErrors); err != nil {
		return nil, err
	}
	out.StartedAt = time.Unix(0, startedNs).UTC()
	if endedNs.Valid {
		t := time.Unix(0, endedNs.Int64).UTC()
		out.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(cfgJSON), &out.Config); err != nil {
		return nil, fmt.Errorf("decode config for session %s: %w", out.ID, err)
	}
	return &out, nil
}
