// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"golang.org/x/perf/benchtrack/history"
)

// fileName turns a category name into a file name.
func fileName(category string) string {
	r := strings.NewReplacer("/", "-per-", " ", "_", string(os.PathSeparator), "_")
	return r.Replace(category)
}

// segments splits rs into runs of points at consecutive positions of
// axis, so that lines are not drawn across gaps.
func segments(rs history.RelativeSeries, axis []int) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for _, rev := range axis {
		v, ok := rs.At(rev)
		if !ok {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(rev), Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Chart plots the relative performance of every case in v, one line
// per case, against the observation number.
func Chart(v history.CategoryView) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = v.Category
	p.X.Label.Text = "observation number"
	p.Y.Label.Text = "time / first time"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, rs := range v.Relative {
		clr := plotutil.Color(i)
		var legend plot.Thumbnailer
		for _, seg := range segments(rs, v.Revisions) {
			if len(seg) == 1 {
				s, err := plotter.NewScatter(seg)
				if err != nil {
					return nil, err
				}
				s.GlyphStyle.Color = clr
				s.GlyphStyle.Shape = draw.CircleGlyph{}
				p.Add(s)
				if legend == nil {
					legend = s
				}
				continue
			}
			l, err := plotter.NewLine(seg)
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = clr
			l.LineStyle.Width = vg.Points(1.5)
			p.Add(l)
			if legend == nil {
				legend = l
			}
		}
		if legend != nil {
			p.Legend.Add(rs.Case, legend)
		}
	}

	if mean := segments(v.RelativeMean, v.Revisions); len(v.Relative) > 1 && len(mean) > 0 {
		for j, seg := range mean {
			l, err := plotter.NewLine(seg)
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = color.Black
			l.LineStyle.Width = vg.Points(2)
			l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			p.Add(l)
			if j == 0 {
				p.Legend.Add("mean", l)
			}
		}
	}

	// Force the unit ratio onto the graph to ensure there is a scale.
	if p.Y.Min > 1 {
		p.Y.Min = 1
	}
	if p.Y.Max < 1 {
		p.Y.Max = 1
	}
	return p, nil
}

// SaveCharts writes one chart per category into dir. format is any
// extension plot.Save understands, such as "png" or "svg".
func SaveCharts(dir, format string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	var paths []string
	for _, v := range r.Views {
		p, err := Chart(v)
		if err != nil {
			return paths, fmt.Errorf("chart %s: %w", v.Category, err)
		}
		width := 4*vg.Inch + vg.Length(len(v.Revisions))*vg.Points(12)
		if width > 20*vg.Inch {
			width = 20 * vg.Inch
		}
		path := filepath.Join(dir, fileName(v.Category)+"."+format)
		if err := p.Save(width, 4*vg.Inch, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
