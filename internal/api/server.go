// Package api serves the sonar HTTP API: live and stored readings, driver
// status, statistics, a distance chart and start/stop control.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	task  *sonar.Task
	db    *db.DB
	units string
	tz    string
}

// NewServer creates a server for task. store may be nil, in which case the
// history endpoints answer 503. units and tz are the defaults applied when
// a request does not name its own.
func NewServer(task *sonar.Task, store *db.DB, defaultUnits, tz string) *Server {
	if defaultUnits == "" {
		defaultUnits = units.M
	}
	if tz == "" {
		tz = "UTC"
	}
	return &Server{task: task, db: store, units: defaultUnits, tz: tz}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/start", s.controlHandler(sonar.CommandStart))
	mux.HandleFunc("/api/stop", s.controlHandler(sonar.CommandStop))
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/reading/latest", s.showLatestReading)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/charts/distance", s.distanceChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to write response: %v", err)
	}
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	reply, err := s.task.Execute(r.Context(), command)
	if errors.Is(err, sonar.ErrUnknownCommand) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Command failed: %v", err), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, reply)
}

func (s *Server) controlHandler(cmd sonar.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		reply, err := s.task.Execute(r.Context(), string(cmd))
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, map[string]any{"result": reply, "running": s.task.Running()})
	}
}

type statusResponse struct {
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
	sonar.Status
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	resp := statusResponse{
		Running: s.task.Running(),
		Status:  s.task.Driver().Status(),
	}
	if err := s.task.Err(); err != nil {
		resp.LastError = err.Error()
	}
	s.writeJSON(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	cfg := s.task.Driver().Config()
	s.writeJSON(w, map[string]any{
		"units":               s.units,
		"timezone":            s.tz,
		"valid_units":         units.ValidUnits,
		"tick_frequency_hz":   cfg.TickFrequency,
		"sample_interval":     cfg.SampleInterval.String(),
		"watchdog_threshold":  cfg.WatchdogThreshold,
		"min_distance_m":      cfg.MinDistance,
		"max_distance_m":      cfg.MaxDistance,
		"distance_per_tick_m": cfg.DistancePerTick(),
		"sensor_type":         cfg.SensorType,
	})
}
