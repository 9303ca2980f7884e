package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceChart(t *testing.T) {
	env := newTestEnv(t, true)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/charts/distance", "").Code)

	s := env.seed(t, 20, 5)
	w := env.do(http.MethodGet, "/charts/distance?units=ft&session="+s.ID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "distance (ft)")
	assert.Contains(t, body, s.ID)

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodPost, "/charts/distance", "").Code)
}
