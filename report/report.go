// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report renders benchmark history as text, CSV, HTML and
// line charts.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"golang.org/x/perf/benchunit"

	"golang.org/x/perf/benchtrack/aggregate"
	"golang.org/x/perf/benchtrack/history"
	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/walker"
)

// A Report is everything a sink renders.
type Report struct {
	Views     []history.CategoryView
	Revisions []observation.Revision

	// Skips and ContextFailures come from the walk that produced
	// the data, if it was just run.
	Skips           []walker.Skip
	ContextFailures []walker.ContextFailure
}

// Build assembles a report from the categories in s whose name
// contains filter.
func Build(ctx context.Context, s observation.Store, merge aggregate.Merge, filter string) (*Report, error) {
	b := &history.Builder{Store: s, Merge: merge}
	views, err := b.Categories(ctx, filter)
	if err != nil {
		return nil, err
	}
	revs, err := s.Revisions(ctx)
	if err != nil {
		return nil, err
	}
	return &Report{Views: views, Revisions: revs}, nil
}

// AddWalk records the skips and context failures of res.
func (r *Report) AddWalk(res *walker.Result) {
	if res == nil {
		return
	}
	r.Skips = append(r.Skips, res.Skips...)
	r.ContextFailures = append(r.ContextFailures, res.ContextFailures...)
}

// Label returns the label of revision rev, or its index if it has
// none.
func (r *Report) Label(rev int) string {
	for _, x := range r.Revisions {
		if x.Index == rev && x.Label != "" {
			return x.Label
		}
	}
	return "#" + strconv.Itoa(rev)
}

// summaryAt returns the summary of s at rev.
func summaryAt(s history.Series, rev int) (aggregate.Summary, bool) {
	for _, e := range s.Entries {
		if e.Revision == rev {
			return e, true
		}
	}
	return aggregate.Summary{}, false
}

// durationScaler returns a formatter for nanosecond values that uses
// one SI prefix for all of ns.
func durationScaler(ns []float64) func(float64) string {
	secs := make([]float64, len(ns))
	for i, v := range ns {
		secs[i] = v / 1e9
	}
	scaler := benchunit.CommonScale(secs, benchunit.Decimal)
	return func(v float64) string { return scaler.Format(v/1e9) + "s" }
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteText writes one table per category to w. Each row is a
// revision; each case column shows the mean duration, its spread and
// the value relative to the case's baseline. A dash marks a gap.
func WriteText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for i, v := range r.Views {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "category: %s\n", v.Category)
		fmt.Fprint(tw, "revision\tlabel")
		var scalers []func(float64) string
		for _, s := range v.Cases {
			fmt.Fprintf(tw, "\t%s", s.Case)
			means := make([]float64, len(s.Entries))
			for j, e := range s.Entries {
				means[j] = e.Mean
			}
			scalers = append(scalers, durationScaler(means))
		}
		fmt.Fprint(tw, "\tmean\n")
		for _, rev := range v.Revisions {
			fmt.Fprintf(tw, "%d\t%s", rev, r.Label(rev))
			for j, s := range v.Cases {
				sum, ok := summaryAt(s, rev)
				if !ok {
					fmt.Fprint(tw, "\t-")
					continue
				}
				cell := scalers[j](sum.Mean)
				if spread := sum.Spread(); spread > 0 {
					cell += fmt.Sprintf(" ±%.0f%%", spread*100)
				}
				if rel, ok := v.Relative[j].At(rev); ok {
					cell += " x" + formatRatio(rel)
				}
				if sum.Successful < sum.Total {
					cell += fmt.Sprintf(" (%d/%d ok)", sum.Successful, sum.Total)
				}
				fmt.Fprintf(tw, "\t%s", cell)
			}
			if rel, ok := v.RelativeMean.At(rev); ok {
				fmt.Fprintf(tw, "\tx%s\n", formatRatio(rel))
			} else {
				fmt.Fprint(tw, "\t-\n")
			}
		}
	}
	var undefined []string
	for _, v := range r.Views {
		for _, rs := range v.Relative {
			if rs.Undefined {
				undefined = append(undefined, rs.Case)
			}
		}
		if v.RelativeMean.Undefined {
			undefined = append(undefined, v.Category+" (mean)")
		}
	}
	if len(undefined) > 0 {
		fmt.Fprintf(tw, "\nno baseline (zero mean at first revision):\n")
		for _, name := range undefined {
			fmt.Fprintf(tw, "  %s\n", name)
		}
	}
	if len(r.Skips) > 0 {
		fmt.Fprintf(tw, "\nskipped:\n")
		for _, s := range r.Skips {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Case, r.Label(s.Revision), s.Reason, s.Detail)
		}
	}
	if len(r.ContextFailures) > 0 {
		fmt.Fprintf(tw, "\ncontext failures:\n")
		for _, f := range r.ContextFailures {
			fmt.Fprintf(tw, "  %s\t%v\n", r.Label(f.Revision), f.Err)
		}
	}
	return tw.Flush()
}
