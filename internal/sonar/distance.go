package sonar

import "time"

// ElapsedTicks returns the forward tick distance from start to end on a
// 16-bit counter that may have wrapped once between the two captures.
func ElapsedTicks(start, end uint16) uint32 {
	if end >= start {
		return uint32(end - start)
	}
	return (MaxTick + 1 - uint32(start)) + uint32(end)
}

// Distance converts an elapsed tick count into metres.
func (c Config) Distance(elapsed uint32) float64 {
	return float64(elapsed) * c.DistancePerTick()
}

// InRange reports whether d lies within the sensor bounds, inclusive.
func (c Config) InRange(d float64) bool {
	return d >= c.MinDistance && d <= c.MaxDistance
}

// NewReading computes and validates the distance of a completed cycle. An
// out-of-range distance is reported as zero with Valid unset; that is a
// normal outcome, not an error.
func (c Config) NewReading(cycle Cycle, at time.Time) Reading {
	elapsed := cycle.Elapsed()
	distance := c.Distance(elapsed)
	valid := c.InRange(distance)
	if !valid {
		distance = 0
	}
	return Reading{
		Timestamp:    at,
		Distance:     distance,
		Valid:        valid,
		MinDistance:  c.MinDistance,
		MaxDistance:  c.MaxDistance,
		Type:         c.SensorType,
		ElapsedTicks: elapsed,
		Sequence:     cycle.Sequence,
	}
}
