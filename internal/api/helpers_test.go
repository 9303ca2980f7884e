package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/hw"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	mux    *http.ServeMux
	task   *sonar.Task
	store  *db.DB
	clock  *timeutil.MockClock
}

// newTestEnv wires a server to a simulated sensor at 0.5 m on a mock clock
// and a temporary database.
func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	clk := timeutil.NewMockClock(testEpoch)
	sim := hw.NewSimSensor(hw.SimOptions{
		Clock:    clk,
		Distance: func(time.Time) float64 { return 0.5 },
	})
	d, err := sonar.NewDriver(sonar.DefaultConfig(), sim, sim, nil, sonar.WithClock(clk))
	require.NoError(t, err)
	task := sonar.NewTask(d)
	t.Cleanup(task.Stop)

	env := &testEnv{task: task, clock: clk}
	if withDB {
		store, err := db.NewDB(filepath.Join(t.TempDir(), "sonar.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		env.store = store
	}
	env.server = NewServer(task, env.store, "", "")
	env.mux = env.server.ServeMux()
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

// sampleOnce starts the task, lets one sample interval pass and waits for
// the first reading.
func (e *testEnv) sampleOnce(t *testing.T) sonar.Reading {
	t.Helper()
	require.NoError(t, e.task.Start(context.Background()))
	require.Eventually(t, func() bool { return e.clock.Tickers() == 1 }, 5*time.Second, time.Millisecond)
	e.clock.Advance(20 * time.Millisecond)
	var r sonar.Reading
	require.Eventually(t, func() bool {
		var ok bool
		r, ok = e.task.Driver().LastReading()
		return ok
	}, 5*time.Second, time.Millisecond)
	return r
}

// seed stores readings at 20ms spacing, the ones listed in invalid out of
// range.
func (e *testEnv) seed(t *testing.T, n int, invalid ...int) *db.Session {
	t.Helper()
	ctx := context.Background()
	cfg := sonar.DefaultConfig()
	s, err := e.store.StartSession(ctx, "sim", cfg, testEpoch)
	require.NoError(t, err)
	bad := map[int]bool{}
	for _, i := range invalid {
		bad[i] = true
	}
	for i := 1; i <= n; i++ {
		d := 1.0 + float64(i)/100
		if bad[i] {
			d = 0
		}
		require.NoError(t, e.store.RecordReading(ctx, s.ID, sonar.Reading{
			Timestamp:   testEpoch.Add(time.Duration(i) * 20 * time.Millisecond),
			Distance:    d,
			Valid:       !bad[i],
			MinDistance: cfg.MinDistance,
			MaxDistance: cfg.MaxDistance,
			Type:        cfg.SensorType,
			Sequence:    uint32(i),
		}))
	}
	return s
}
