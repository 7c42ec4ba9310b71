// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aggregate reduces the observations of a case at a revision
// to a single summary.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/aclements/go-moremath/stats"
	"golang.org/x/perf/benchmath"

	"golang.org/x/perf/benchtrack/observation"
)

// A Merge policy decides how observations of the same case and
// revision from different batches are combined.
type Merge int

const (
	// Replace uses only the most recent batch.
	Replace Merge = iota
	// Combine pools every batch.
	Combine
)

func (m Merge) String() string {
	switch m {
	case Replace:
		return "replace"
	case Combine:
		return "combine"
	}
	return fmt.Sprintf("Merge(%d)", int(m))
}

// ParseMerge parses the name of a merge policy.
func ParseMerge(s string) (Merge, error) {
	switch s {
	case "replace", "":
		return Replace, nil
	case "combine":
		return Combine, nil
	}
	return 0, fmt.Errorf("unknown merge policy %q", s)
}

// A Summary describes the observations of one case at one revision.
// Durations are in nanoseconds and cover successful attempts only.
type Summary struct {
	Case     string
	Revision int

	// Mean is the arithmetic mean duration. It is the normalized
	// value that history series are built from.
	Mean   float64
	Median float64
	Min    float64
	Max    float64

	Successful int
	Total      int
}

// Spread returns the largest deviation of Min or Max from Mean, as a
// fraction of Mean.
func (s Summary) Spread() float64 {
	if s.Mean == 0 {
		return 0
	}
	diff := 1 - s.Min/s.Mean
	if d := s.Max/s.Mean - 1; d > diff {
		diff = d
	}
	return diff
}

// Aggregate summarizes obs, which must all be of the same case and
// revision. It returns false if none of them succeeded: such a
// revision is a gap, not a zero.
func Aggregate(obs []observation.Observation) (Summary, bool) {
	if len(obs) == 0 {
		return Summary{}, false
	}
	s := Summary{Case: obs[0].Case, Revision: obs[0].Revision, Total: len(obs)}
	var values []float64
	for _, o := range obs {
		if o.OK() {
			values = append(values, float64(o.Duration))
		}
	}
	s.Successful = len(values)
	if s.Successful == 0 {
		return s, false
	}
	s.Mean = stats.Mean(values)
	s.Min, s.Max = stats.Bounds(values)
	sample := benchmath.NewSample(values, &benchmath.DefaultThresholds)
	s.Median = benchmath.AssumeNothing.Summary(sample, 0.95).Center
	return s, true
}

type groupKey struct {
	caseID   string
	revision int
}

// Select applies merge to obs and groups the result by case and
// revision.
func Select(obs []observation.Observation, merge Merge) map[string]map[int][]observation.Observation {
	groups := make(map[groupKey][]observation.Observation)
	latest := make(map[groupKey]int64)
	for _, o := range obs {
		k := groupKey{o.Case, o.Revision}
		groups[k] = append(groups[k], o)
		if b, ok := latest[k]; !ok || o.Batch > b {
			latest[k] = o.Batch
		}
	}
	out := make(map[string]map[int][]observation.Observation)
	for k, g := range groups {
		if merge == Replace {
			var keep []observation.Observation
			for _, o := range g {
				if o.Batch == latest[k] {
					keep = append(keep, o)
				}
			}
			g = keep
		}
		if out[k.caseID] == nil {
			out[k.caseID] = make(map[int][]observation.Observation)
		}
		out[k.caseID][k.revision] = g
	}
	return out
}

// Group summarizes obs per case and revision, ordered by case and then
// revision. Revisions without a successful attempt are omitted.
func Group(obs []observation.Observation, merge Merge) []Summary {
	var out []Summary
	for _, revs := range Select(obs, merge) {
		for _, g := range revs {
			if s, ok := Aggregate(g); ok {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Case != out[j].Case {
			return out[i].Case < out[j].Case
		}
		return out[i].Revision < out[j].Revision
	})
	return out
}

// A CategorySummary is the mean of the case means of a category at a
// revision.
type CategorySummary struct {
	Category string
	Revision int
	Mean     float64
	// Cases is the number of cases that contributed.
	Cases int
}

// CategoryAt combines the summaries at revision into a category
// summary. Summaries at other revisions are ignored. It returns false
// if no summary is at revision.
func CategoryAt(category string, revision int, summaries []Summary) (CategorySummary, bool) {
	cs := CategorySummary{Category: category, Revision: revision}
	var means []float64
	for _, s := range summaries {
		if s.Revision == revision {
			means = append(means, s.Mean)
		}
	}
	if len(means) == 0 {
		return cs, false
	}
	cs.Mean = stats.Mean(means)
	cs.Cases = len(means)
	return cs, true
}
