package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/units"
)

// ReadingAPI is a reading converted to the requested units and timezone.
type ReadingAPI struct {
	SessionID    string           `json:"session_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	Distance     float64          `json:"distance"`
	MinDistance  float64          `json:"min_distance"`
	MaxDistance  float64          `json:"max_distance"`
	Units        string           `json:"units"`
	Valid        bool             `json:"valid"`
	Type         sonar.SensorType `json:"type"`
	ElapsedTicks uint32           `json:"elapsed_ticks"`
	Sequence     uint32           `json:"sequence"`
}

// presentation holds the per-request output options.
type presentation struct {
	units string
	tz    string
}

func (s *Server) presentation(q url.Values) (presentation, error) {
	p := presentation{units: s.units, tz: s.tz}
	if u := q.Get("units"); u != "" {
		parsed, err := units.ParseUnits(u)
		if err != nil {
			return p, err
		}
		p.units = parsed
	}
	if tz := q.Get("tz"); tz != "" {
		if !units.IsTimezoneValid(tz) {
			return p, fmt.Errorf("invalid timezone %q", tz)
		}
		p.tz = tz
	}
	return p, nil
}

func (p presentation) reading(sessionID string, r sonar.Reading) ReadingAPI {
	ts, err := units.ConvertTime(r.Timestamp.UTC(), p.tz)
	if err != nil {
		ts = r.Timestamp.UTC()
	}
	return ReadingAPI{
		SessionID:    sessionID,
		Timestamp:    ts,
		Distance:     units.ConvertDistance(r.Distance, p.units),
		MinDistance:  units.ConvertDistance(r.MinDistance, p.units),
		MaxDistance:  units.ConvertDistance(r.MaxDistance, p.units),
		Units:        p.units,
		Valid:        r.Valid,
		Type:         r.Type,
		ElapsedTicks: r.ElapsedTicks,
		Sequence:     r.Sequence,
	}
}

// parseTimeParam accepts RFC 3339 or unix seconds.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or unix seconds", v)
	}
	return time.Unix(0, int64(secs*1e9)).UTC(), nil
}

func parseReadingQuery(q url.Values) (db.ReadingQuery, error) {
	var rq db.ReadingQuery
	var err error
	rq.SessionID = q.Get("session")
	if rq.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return rq, err
	}
	if rq.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return rq, err
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return rq, fmt.Errorf("invalid 'limit' parameter")
		}
		rq.Limit = n
	}
	switch q.Get("valid") {
	case "", "0", "false":
	case "1", "true":
		rq.ValidOnly = true
	default:
		return rq, fmt.Errorf("invalid 'valid' parameter")
	}
	return rq, nil
}

func (s *Server) showLatestReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	p, err := s.presentation(r.URL.Query())
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if reading, ok := s.task.Driver().LastReading(); ok {
		s.writeJSON(w, p.reading("", reading))
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "no reading yet")
		return
	}
	stored, err := s.db.LatestReading(r.Context())
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "no reading yet")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve reading: %v", err))
		return
	}
	s.writeJSON(w, p.reading(stored.SessionID, stored.Reading))
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "reading history disabled")
		return
	}
	q := r.URL.Query()
	p, err := s.presentation(q)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rq, err := parseReadingQuery(q)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.db.Readings(r.Context(), rq)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	out := make([]ReadingAPI, len(stored))
	for i, sr := range stored {
		out[i] = p.reading(sr.SessionID, sr.Reading)
	}
	s.writeJSON(w, out)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "reading history disabled")
		return
	}
	q := r.URL.Query()
	p, err := s.presentation(q)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rq, err := parseReadingQuery(q)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rq.Limit == 0 {
		rq.Limit = db.MaxReadingLimit
	}

	st, err := s.db.Stats(r.Context(), rq)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}
	conv := func(v float64) float64 { return units.ConvertDistance(v, p.units) }
	s.writeJSON(w, map[string]any{
		"units":  p.units,
		"count":  st.Count,
		"valid":  st.Valid,
		"mean":   conv(st.Mean),
		"stddev": conv(st.StdDev),
		"min":    conv(st.Min),
		"max":    conv(st.Max),
		"p50":    conv(st.P50),
		"p90":    conv(st.P90),
		"p99":    conv(st.P99),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "reading history disabled")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	sessions, err := s.db.Sessions(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []*db.Session{}
	}
	s.writeJSON(w, sessions)
}
