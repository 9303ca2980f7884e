package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sonar/internal/units"
)

const defaultChartPoints = 2000

// distanceChart renders stored distances as an HTML line chart using
// go-echarts. Invalid readings appear as gaps.
// Query params: session, since, until, limit, units, tz.
func (s *Server) distanceChart(w http.ResponseWriter, r *http.Request) {
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
		rq.Limit = defaultChartPoints
	}

	stored, err := s.db.Readings(r.Context(), rq)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	if len(stored) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no readings in range")
		return
	}

	x := make([]string, len(stored))
	y := make([]opts.LineData, len(stored))
	for i, sr := range stored {
		rd := p.reading(sr.SessionID, sr.Reading)
		x[i] = rd.Timestamp.Format("15:04:05.000")
		if rd.Valid {
			y[i] = opts.LineData{Value: rd.Distance}
		} else {
			y[i] = opts.LineData{Value: "-"}
		}
	}

	first := stored[0].Reading
	maxY := units.ConvertDistance(first.MaxDistance, p.units)
	subtitle := fmt.Sprintf("%d readings from %s", len(stored), stored[0].Timestamp.Format(time.RFC3339))
	if rq.SessionID != "" {
		subtitle += " session=" + rq.SessionID
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sonar distance", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Distance", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (" + p.units + ")", Min: 0, Max: maxY}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).AddSeries("distance", y,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
