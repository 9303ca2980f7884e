package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/sonar"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestDB creates a migrated database in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sonar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSession(t *testing.T, db *DB) *Session {
	t.Helper()
	s, err := db.StartSession(context.Background(), "sim", sonar.DefaultConfig(), testEpoch)
	require.NoError(t, err)
	return s
}

// reading builds a reading seq samples after testEpoch at 20ms spacing.
func reading(seq uint32, distance float64) sonar.Reading {
	cfg := sonar.DefaultConfig()
	return sonar.Reading{
		Timestamp:    testEpoch.Add(time.Duration(seq) * 20 * time.Millisecond),
		Distance:     distance,
		Valid:        cfg.InRange(distance),
		MinDistance:  cfg.MinDistance,
		MaxDistance:  cfg.MaxDistance,
		Type:         cfg.SensorType,
		ElapsedTicks: uint32(distance / cfg.DistancePerTick()),
		Sequence:     seq,
	}
}
