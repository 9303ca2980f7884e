package telemetry

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestAttachAdminRoutes_Console(t *testing.T) {
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, NewHub(), &fakeCommander{})

	for _, path := range []string{"/debug/sonar-console", "/debug/tail.js"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, w.Code)
		}
	}
}

func TestCommandHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{"ok", http.MethodPost, url.Values{"command": {"status"}}, http.StatusOK, "ok status"},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest, "Missing command"},
		{"missing", http.MethodPost, url.Values{}, http.StatusBadRequest, "Missing command"},
		{"failing command", http.MethodPost, url.Values{"command": {"bogus"}}, http.StatusBadRequest, "unknown command"},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed, "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			AttachAdminRoutes(mux, NewHub(), &fakeCommander{})

			req := localHostRequest(tt.method, "/debug/sonar-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestTailHandler_StreamsReadings(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(tailHandler(hub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET tail: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ": ping\n" {
		t.Fatalf("first line = %q, want ping", line)
	}

	for hub.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}
	hub.Publish(testReading)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, `"sequence":7`) {
				t.Errorf("unexpected event %q", line)
			}
			return
		}
	}
}

func TestTailHandler_RejectsPost(t *testing.T) {
	w := httptest.NewRecorder()
	tailHandler(NewHub())(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}
