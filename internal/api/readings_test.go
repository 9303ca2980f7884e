package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestReading_Live(t *testing.T) {
	env := newTestEnv(t, false)
	want := env.sampleOnce(t)

	w := env.do(http.MethodGet, "/api/reading/latest?units=cm", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got ReadingAPI
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "cm", got.Units)
	assert.True(t, got.Valid)
	assert.InDelta(t, 50.0, got.Distance, 0.1)
	assert.InDelta(t, 300.0, got.MaxDistance, 1e-9)
	assert.Equal(t, want.Sequence, got.Sequence)
}

func TestLatestReading_FromStore(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(http.MethodGet, "/api/reading/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s := env.seed(t, 3)
	w = env.do(http.MethodGet, "/api/reading/latest?tz=Europe/Berlin", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got ReadingAPI
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, s.ID, got.SessionID)
	assert.EqualValues(t, 3, got.Sequence)
	_, offset := got.Timestamp.Zone()
	assert.Equal(t, 3600, offset, "March in Berlin is UTC+1")
}

func TestLatestReading_BadParams(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/reading/latest?units=parsec", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/reading/latest?tz=Mars/Base", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/reading/latest", "").Code)
}

func TestListReadings(t *testing.T) {
	env := newTestEnv(t, true)
	s := env.seed(t, 10, 4)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantSeqs   []uint32
	}{
		{"all", "/api/readings", http.StatusOK, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"limit", "/api/readings?limit=2", http.StatusOK, []uint32{9, 10}},
		{"valid", "/api/readings?valid=1&limit=4", http.StatusOK, []uint32{7, 8, 9, 10}},
		{"session", "/api/readings?session=" + s.ID + "&limit=1", http.StatusOK, []uint32{10}},
		{
			"window",
			"/api/readings?since=" + testEpoch.Add(60*time.Millisecond).Format(time.RFC3339Nano) +
				"&until=" + testEpoch.Add(120*time.Millisecond).Format(time.RFC3339Nano),
			http.StatusOK, []uint32{3, 4, 5},
		},
		{"bad limit", "/api/readings?limit=0", http.StatusBadRequest, nil},
		{"bad since", "/api/readings?since=yesterday", http.StatusBadRequest, nil},
		{"bad valid", "/api/readings?valid=maybe", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tt.target, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []ReadingAPI
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			var seqs []uint32
			for _, r := range got {
				seqs = append(seqs, r.Sequence)
			}
			assert.Equal(t, tt.wantSeqs, seqs)
		})
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	env := newTestEnv(t, false)
	for _, target := range []string{"/api/readings", "/api/stats", "/api/sessions", "/charts/distance"} {
		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, target, "").Code, target)
	}
}

func TestShowStats(t *testing.T) {
	env := newTestEnv(t, true)
	env.seed(t, 3, 2)

	w := env.do(http.MethodGet, "/api/stats?units=mm", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "mm", st["units"])
	assert.EqualValues(t, 3, st["count"])
	assert.EqualValues(t, 2, st["valid"])
	// valid distances are 1.01 m and 1.03 m
	assert.InDelta(t, 1020.0, st["mean"], 1e-6)
	assert.InDelta(t, 1010.0, st["min"], 1e-6)
	assert.InDelta(t, 1030.0, st["max"], 1e-6)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	s := env.seed(t, 1)
	w = env.do(http.MethodGet, "/api/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, s.ID, sessions[0]["session_id"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/sessions?limit=x", "").Code)
}

func TestParseTimeParam(t *testing.T) {
	ts, err := parseTimeParam("1772366400")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	ts, err = parseTimeParam("2026-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(testEpoch))

	ts, err = parseTimeParam("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}
