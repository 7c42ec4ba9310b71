// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history builds per-case and per-category performance series
// over the revisions recorded in a store.
//
// A series is indexed by revision index, the observation number, and
// never by wall-clock time. A revision at which a case has no
// successful attempt is a gap: it is absent from the series, not a
// zero. Relative series divide every value by the first one, so a
// value of 1.2 means 20% slower than the baseline.
package history

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"golang.org/x/perf/benchtrack/aggregate"
	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

// A Series is the summaries of one case in increasing revision order.
type Series struct {
	Case    string
	Entries []aggregate.Summary
}

// Revisions returns the revisions present in s.
func (s Series) Revisions() []int {
	return lo.Map(s.Entries, func(e aggregate.Summary, _ int) int { return e.Revision })
}

// BuildSeries summarizes the observations of caseID in obs.
// Observations of other cases are ignored.
func BuildSeries(caseID string, obs []observation.Observation, merge aggregate.Merge) Series {
	mine := lo.Filter(obs, func(o observation.Observation, _ int) bool { return o.Case == caseID })
	return Series{Case: caseID, Entries: aggregate.Group(mine, merge)}
}

// A Point is one value of a relative series.
type Point struct {
	Revision int
	Value    float64
}

// A RelativeSeries is a series normalized to its first value.
type RelativeSeries struct {
	Case string
	// Baseline is the mean duration the points are relative to, in
	// nanoseconds. It is zero for an empty series.
	Baseline float64
	// Undefined is set when the first entry has a zero mean. Such a
	// series has no points: no ratio to it is defined.
	Undefined bool
	Points    []Point
}

// At returns the value at revision rev.
func (r RelativeSeries) At(rev int) (float64, bool) {
	i := sort.Search(len(r.Points), func(i int) bool { return r.Points[i].Revision >= rev })
	if i < len(r.Points) && r.Points[i].Revision == rev {
		return r.Points[i].Value, true
	}
	return 0, false
}

// Relative normalizes s to its first entry. If that entry has a zero
// mean the result is marked Undefined and has no points. An empty
// series gives an empty relative series.
func Relative(s Series) RelativeSeries {
	return relative(s.Case, lo.Map(s.Entries, func(e aggregate.Summary, _ int) Point {
		return Point{e.Revision, e.Mean}
	}))
}

func relative(name string, abs []Point) RelativeSeries {
	rs := RelativeSeries{Case: name}
	if len(abs) == 0 {
		return rs
	}
	if abs[0].Value <= 0 {
		rs.Undefined = true
		return rs
	}
	rs.Baseline = abs[0].Value
	for i, p := range abs {
		v := p.Value / rs.Baseline
		if i == 0 {
			v = 1
		}
		rs.Points = append(rs.Points, Point{p.Revision, v})
	}
	return rs
}

// A CategoryView is the history of every case in a category on a
// common revision axis.
type CategoryView struct {
	Category string
	// Revisions is the union of the revisions of all cases, in
	// increasing order.
	Revisions []int
	// Cases lists the series of the category ordered by case ID.
	Cases    []Series
	Relative []RelativeSeries
	// Mean is the category mean at each revision where at least
	// one case has a value.
	Mean []aggregate.CategorySummary
	// RelativeMean is Mean normalized to its first value.
	RelativeMean RelativeSeries
}

// BuildCategory combines the series of a category.
func BuildCategory(category string, series ...Series) CategoryView {
	series = append([]Series(nil), series...)
	sort.Slice(series, func(i, j int) bool { return series[i].Case < series[j].Case })

	v := CategoryView{Category: category, Cases: series}
	all := lo.Flatten(lo.Map(series, func(s Series, _ int) []int { return s.Revisions() }))
	v.Revisions = lo.Uniq(all)
	sort.Ints(v.Revisions)

	var summaries []aggregate.Summary
	for _, s := range series {
		v.Relative = append(v.Relative, Relative(s))
		summaries = append(summaries, s.Entries...)
	}
	var abs []Point
	for _, rev := range v.Revisions {
		if cs, ok := aggregate.CategoryAt(category, rev, summaries); ok {
			v.Mean = append(v.Mean, cs)
			abs = append(abs, Point{rev, cs.Mean})
		}
	}
	v.RelativeMean = relative(category, abs)
	return v
}

// A Builder reads series from a store.
type Builder struct {
	Store observation.Store
	Merge aggregate.Merge
}

// Series returns the series of one case.
func (b *Builder) Series(ctx context.Context, caseID string) (Series, error) {
	obs, err := b.Store.Observations(ctx, caseID)
	if err != nil {
		return Series{}, err
	}
	return BuildSeries(caseID, obs, b.Merge), nil
}

// Category returns the view of the cases recorded under category.
func (b *Builder) Category(ctx context.Context, category string) (CategoryView, error) {
	cases, err := b.Store.Cases(ctx)
	if err != nil {
		return CategoryView{}, err
	}
	return b.category(ctx, category, registry.Categories(cases)[category])
}

func (b *Builder) category(ctx context.Context, category string, ids []string) (CategoryView, error) {
	var series []Series
	for _, id := range ids {
		s, err := b.Series(ctx, id)
		if err != nil {
			return CategoryView{}, err
		}
		series = append(series, s)
	}
	return BuildCategory(category, series...), nil
}

// Categories returns a view of every recorded category whose name
// contains filter, ordered by name.
func (b *Builder) Categories(ctx context.Context, filter string) ([]CategoryView, error) {
	cases, err := b.Store.Cases(ctx)
	if err != nil {
		return nil, err
	}
	byCat := registry.Categories(registry.Filter(cases, filter))
	names := lo.Keys(byCat)
	sort.Strings(names)
	var views []CategoryView
	for _, name := range names {
		v, err := b.category(ctx, name, byCat[name])
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}
