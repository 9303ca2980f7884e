package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/units"
)

var (
	validColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	invalidColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	boundColor   = color.RGBA{R: 127, G: 127, B: 127, A: 255}
)

// sessionPlot draws distance against seconds since the first reading. Valid
// readings form a line. Out-of-range readings are stored as zero, so they are
// marked at the distance recomputed from their elapsed ticks. The valid
// bounds of the session are drawn dashed.
func sessionPlot(s *db.Session, rs []db.StoredReading, unit string) (*plot.Plot, error) {
	if len(rs) == 0 {
		return nil, fmt.Errorf("session %s has no readings", s.ID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s (%s, %s)", shortID(s.ID), s.Backend, s.StartedAt.Format("2006-01-02 15:04:05"))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = fmt.Sprintf("Distance (%s)", unit)

	t0 := rs[0].Timestamp
	valid := make(plotter.XYs, 0, len(rs))
	invalid := make(plotter.XYs, 0)
	for _, r := range rs {
		x := r.Timestamp.Sub(t0).Seconds()
		if r.Valid {
			valid = append(valid, plotter.XY{X: x, Y: units.ConvertDistance(r.Distance, unit)})
		} else {
			raw := s.Config.Distance(r.ElapsedTicks)
			invalid = append(invalid, plotter.XY{X: x, Y: units.ConvertDistance(raw, unit)})
		}
	}

	if len(valid) > 0 {
		line, err := plotter.NewLine(valid)
		if err != nil {
			return nil, err
		}
		line.Color = validColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("valid (%d)", len(valid)), line)
	}

	if len(invalid) > 0 {
		sc, err := plotter.NewScatter(invalid)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = invalidColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("out of range (%d)", len(invalid)), sc)
	}

	for _, b := range []float64{s.Config.MinDistance, s.Config.MaxDistance} {
		y := units.ConvertDistance(b, unit)
		f := plotter.NewFunction(func(float64) float64 { return y })
		f.Color = boundColor
		f.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(f)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
