// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"golang.org/x/perf/benchtrack/aggregate"
	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

func obs(c string, rev int, ds ...time.Duration) []observation.Observation {
	var out []observation.Observation
	for i, d := range ds {
		o := observation.Observation{Batch: 1, Case: c, Revision: rev, Attempt: i, Duration: d}
		if d < 0 {
			o.Duration, o.Failure = 0, observation.Raised
		}
		out = append(out, o)
	}
	return out
}

func concat(lists ...[]observation.Observation) []observation.Observation {
	var out []observation.Observation
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func points(s RelativeSeries) map[int]float64 {
	m := make(map[int]float64)
	for _, p := range s.Points {
		m[p.Revision] = p.Value
	}
	return m
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestRelativeWithGap(t *testing.T) {
	all := concat(
		obs("a", 0, 100, 100),
		obs("a", 1, -1, -1), // every attempt failed
		obs("a", 2, 150, 250),
		obs("b", 0, 5),
	)
	s := BuildSeries("a", all, aggregate.Replace)
	if diff := cmp.Diff([]int{0, 2}, s.Revisions()); diff != "" {
		t.Errorf("revisions (-want +got):\n%s", diff)
	}
	rs := Relative(s)
	if rs.Baseline != 100 {
		t.Errorf("baseline = %v, want 100", rs.Baseline)
	}
	want := []Point{{0, 1}, {2, 2}}
	if diff := cmp.Diff(want, rs.Points, approx); diff != "" {
		t.Errorf("points (-want +got):\n%s", diff)
	}
	if _, ok := rs.At(1); ok {
		t.Error("At(1) has a value for a gap")
	}
	if v, ok := rs.At(2); !ok || v != 2 {
		t.Errorf("At(2) = %v, %v", v, ok)
	}
}

func TestRelativeZeroBaseline(t *testing.T) {
	s := Series{Case: "z", Entries: []aggregate.Summary{
		{Revision: 0, Mean: 0},
		{Revision: 3, Mean: 0},
		{Revision: 4, Mean: 8},
		{Revision: 6, Mean: 12},
	}}
	rs := Relative(s)
	want := RelativeSeries{Case: "z", Undefined: true}
	if diff := cmp.Diff(want, rs); diff != "" {
		t.Errorf("relative (-want +got):\n%s", diff)
	}
}

func TestZeroMeanIsNotGap(t *testing.T) {
	s := BuildSeries("z", concat(obs("z", 0, 0, 0), obs("z", 1, 10)), aggregate.Replace)
	if diff := cmp.Diff([]int{0, 1}, s.Revisions()); diff != "" {
		t.Errorf("series revisions (-want +got):\n%s", diff)
	}
	rs := Relative(s)
	if !rs.Undefined || len(rs.Points) != 0 {
		t.Errorf("Relative = %+v, want undefined with no points", rs)
	}
}

func TestRelativeEmpty(t *testing.T) {
	rs := Relative(Series{Case: "e"})
	if len(rs.Points) != 0 || rs.Baseline != 0 {
		t.Errorf("Relative(empty) = %+v", rs)
	}
	allZero := Relative(Series{Case: "z", Entries: []aggregate.Summary{{Revision: 1}}})
	if len(allZero.Points) != 0 {
		t.Errorf("Relative(all zero) = %+v", allZero)
	}
}

func TestFirstPointIsOne(t *testing.T) {
	s := Series{Entries: []aggregate.Summary{{Revision: 2, Mean: 3}, {Revision: 5, Mean: 7}}}
	if got := Relative(s).Points[0].Value; got != 1 {
		t.Errorf("first point = %v, want exactly 1", got)
	}
}

func TestBuildCategory(t *testing.T) {
	all := concat(
		obs("c/a", 0, 10),
		obs("c/a", 2, 20),
		obs("c/b", 1, 40),
		obs("c/b", 2, 60),
	)
	v := BuildCategory("c", BuildSeries("c/b", all, aggregate.Replace), BuildSeries("c/a", all, aggregate.Replace))
	if diff := cmp.Diff([]int{0, 1, 2}, v.Revisions); diff != "" {
		t.Errorf("axis (-want +got):\n%s", diff)
	}
	if v.Cases[0].Case != "c/a" || v.Cases[1].Case != "c/b" {
		t.Errorf("cases not ordered by ID: %s, %s", v.Cases[0].Case, v.Cases[1].Case)
	}
	if diff := cmp.Diff(map[int]float64{0: 1, 2: 2}, points(v.Relative[0]), approx); diff != "" {
		t.Errorf("c/a relative (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]float64{1: 1, 2: 1.5}, points(v.Relative[1]), approx); diff != "" {
		t.Errorf("c/b relative (-want +got):\n%s", diff)
	}

	wantMean := []aggregate.CategorySummary{
		{Category: "c", Revision: 0, Mean: 10, Cases: 1},
		{Category: "c", Revision: 1, Mean: 40, Cases: 1},
		{Category: "c", Revision: 2, Mean: 40, Cases: 2},
	}
	if diff := cmp.Diff(wantMean, v.Mean, approx); diff != "" {
		t.Errorf("category mean (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]float64{0: 1, 1: 4, 2: 4}, points(v.RelativeMean), approx); diff != "" {
		t.Errorf("relative category mean (-want +got):\n%s", diff)
	}
}

func TestBuildCategoryEmpty(t *testing.T) {
	v := BuildCategory("none")
	if len(v.Revisions) != 0 || len(v.Mean) != 0 || len(v.RelativeMean.Points) != 0 {
		t.Errorf("BuildCategory() = %+v, want empty", v)
	}
}

func TestBuilder(t *testing.T) {
	ctx := context.Background()
	store := observation.NewMemStore()
	for _, c := range []registry.Case{
		{ID: "x/one", Name: "one", Category: "x"},
		{ID: "x/two", Name: "two", Category: "x"},
		{ID: "y/one", Name: "one", Category: "y"},
	} {
		if err := store.PutCase(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	all := concat(obs("x/one", 0, 10), obs("x/one", 1, 30), obs("x/two", 1, 50), obs("y/one", 0, 1))
	// A later batch replaces x/one at revision 1.
	all = append(all, observation.Observation{Batch: 2, Case: "x/one", Revision: 1, Duration: 20})
	if err := store.Append(ctx, all...); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Store: store}
	s, err := b.Series(ctx, "x/one")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[int]float64{0: 1, 1: 2}, points(Relative(s)), approx); diff != "" {
		t.Errorf("replace (-want +got):\n%s", diff)
	}

	b.Merge = aggregate.Combine
	s, err = b.Series(ctx, "x/one")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[int]float64{0: 1, 1: 2.5}, points(Relative(s)), approx); diff != "" {
		t.Errorf("combine (-want +got):\n%s", diff)
	}

	views, err := b.Categories(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].Category != "x" || views[1].Category != "y" {
		t.Fatalf("Categories = %v", views)
	}
	if len(views[0].Cases) != 2 {
		t.Errorf("category x has %d cases, want 2", len(views[0].Cases))
	}

	views, err = b.Categories(ctx, "y")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].Category != "y" {
		t.Errorf("Categories(y) = %v", views)
	}

	v, err := b.Category(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1}, v.Revisions); diff != "" {
		t.Errorf("x axis (-want +got):\n%s", diff)
	}
}
