package db

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sonar/internal/sonar"
)

// DistanceStats summarises the valid distances in a set of readings.
// Distance fields are zero when there are no valid readings.
type DistanceStats struct {
	Count  int     `json:"count"`
	Valid  int     `json:"valid"`
	Mean   float64 `json:"mean_m"`
	StdDev float64 `json:"stddev_m"`
	Min    float64 `json:"min_m"`
	Max    float64 `json:"max_m"`
	P50    float64 `json:"p50_m"`
	P90    float64 `json:"p90_m"`
	P99    float64 `json:"p99_m"`
}

// ComputeStats summarises rs. Invalid readings count toward Count only.
func ComputeStats(rs []sonar.Reading) DistanceStats {
	s := DistanceStats{Count: len(rs)}
	xs := make([]float64, 0, len(rs))
	for _, r := range rs {
		if r.Valid {
			xs = append(xs, r.Distance)
		}
	}
	s.Valid = len(xs)
	if len(xs) == 0 {
		return s
	}

	sort.Float64s(xs)
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	if len(xs) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	} else {
		s.Mean = xs[0]
	}
	s.P50 = stat.Quantile(0.50, stat.Empirical, xs, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, xs, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, xs, nil)
	return s
}

// Stats computes DistanceStats over the readings matching q.
func (db *DB) Stats(ctx context.Context, q ReadingQuery) (DistanceStats, error) {
	// ValidOnly would hide the invalid count.
	q.ValidOnly = false
	stored, err := db.Readings(ctx, q)
	if err != nil {
		return DistanceStats{}, fmt.Errorf("stats: %w", err)
	}
	rs := make([]sonar.Reading, len(stored))
	for i, r := range stored {
		rs[i] = r.Reading
	}
	return ComputeStats(rs), nil
}
