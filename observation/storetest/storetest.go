// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storetest checks that an observation.Store implementation
// behaves like an append-only store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

// Run runs the conformance tests. newStore must return a new, empty
// store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) observation.Store) {
	tests := []struct {
		name string
		fn   func(*testing.T, observation.Store)
	}{
		{"Batches", testBatches},
		{"AppendAndRead", testAppendAndRead},
		{"AppendExisting", testAppendExisting},
		{"Metadata", testMetadata},
		{"NegativeIndices", testNegativeIndices},
		{"ConcurrentRead", testConcurrentRead},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			test.fn(t, s)
		})
	}
}

var (
	t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cases = []registry.Case{
		{ID: "sort/ints", Name: "ints", Category: "sort", Fingerprint: "func([]int)"},
		{ID: "sort/strings/size=100", Name: "strings", Category: "sort", Size: 100, Config: registry.Config{Iterations: 3, Timeout: time.Second}},
	}
)

// Stores are free to normalize time zones.
var timeEqual = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func testBatches(t *testing.T, s observation.Store) {
	ctx := context.Background()
	var last int64
	for i := 0; i < 3; i++ {
		b, err := s.NewBatch(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if b <= last {
			t.Errorf("NewBatch = %d after %d, want increasing", b, last)
		}
		last = b
	}
}

func sampleObservations(batch int64) []observation.Observation {
	return []observation.Observation{
		{Batch: batch, Case: "sort/ints", Revision: 2, Attempt: 1, Duration: 12, Recorded: t0},
		{Batch: batch, Case: "sort/ints", Revision: 1, Attempt: 0, Duration: 10, Recorded: t0},
		{Batch: batch, Case: "sort/ints", Revision: 2, Attempt: 0, Failure: observation.Timeout, Detail: "after 1s", Recorded: t0},
		{Batch: batch, Case: "sort/strings/size=100", Revision: 1, Attempt: 0, Failure: observation.Raised, Detail: "panic: boom", Recorded: t0},
	}
}

func testAppendAndRead(t *testing.T, s observation.Store) {
	ctx := context.Background()
	b1, err := s.NewBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := s.NewBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, sampleObservations(b1)...); err != nil {
		t.Fatal(err)
	}
	later := observation.Observation{Batch: b2, Case: "sort/ints", Revision: 1, Attempt: 0, Duration: 11, Recorded: t0}
	if err := s.Append(ctx, later); err != nil {
		t.Fatal(err)
	}

	got, err := s.Observations(ctx, "sort/ints")
	if err != nil {
		t.Fatal(err)
	}
	all := sampleObservations(b1)
	want := []observation.Observation{all[1], later, all[2], all[0]}
	if diff := cmp.Diff(want, got, timeEqual); diff != "" {
		t.Errorf("Observations (-want +got):\n%s", diff)
	}

	got, err = s.Observations(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Observations(missing) = %v, want none", got)
	}
}

func testAppendExisting(t *testing.T, s observation.Store) {
	ctx := context.Background()
	b, err := s.NewBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	obs := sampleObservations(b)
	if err := s.Append(ctx, obs...); err != nil {
		t.Fatal(err)
	}
	dup := obs[0]
	dup.Duration = 99
	fresh := observation.Observation{Batch: b, Case: "sort/ints", Revision: 3, Attempt: 0, Duration: 1}
	err = s.Append(ctx, fresh, dup)
	if !errors.Is(err, observation.ErrExists) {
		t.Fatalf("Append(existing) = %v, want ErrExists", err)
	}

	got, err := s.Observations(ctx, "sort/ints")
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range got {
		if o.Revision == 3 {
			t.Errorf("failed Append recorded %v", o)
		}
		if o.Key() == dup.Key() && o.Duration != obs[0].Duration {
			t.Errorf("Append overwrote %v", o)
		}
	}
	if len(got) != 3 {
		t.Errorf("got %d observations after failed append, want 3", len(got))
	}
}

func testMetadata(t *testing.T, s observation.Store) {
	ctx := context.Background()
	for _, c := range cases {
		if err := s.PutCase(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	changed := cases[0]
	changed.Fingerprint = "func([]int) error"
	if err := s.PutCase(ctx, changed); err != nil {
		t.Fatal(err)
	}
	got, err := s.Cases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cases, got); diff != "" {
		t.Errorf("Cases (-want +got):\n%s", diff)
	}

	revs := []observation.Revision{
		{Index: 4, Label: "b", Handle: "bbbb"},
		{Index: 0, Label: "a", Handle: "aaaa", Recorded: t0},
	}
	for _, r := range revs {
		if err := s.PutRevision(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutRevision(ctx, observation.Revision{Index: 4, Label: "other"}); err != nil {
		t.Fatal(err)
	}
	gotRevs, err := s.Revisions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantRevs := []observation.Revision{revs[1], revs[0]}
	if diff := cmp.Diff(wantRevs, gotRevs, timeEqual, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Revisions (-want +got):\n%s", diff)
	}

	max, err := observation.MaxRevision(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if max != 4 {
		t.Errorf("MaxRevision = %d, want 4", max)
	}
}

func testNegativeIndices(t *testing.T, s observation.Store) {
	ctx := context.Background()
	b, err := s.NewBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{2, -1, 0} {
		if err := s.PutRevision(ctx, observation.Revision{Index: i}); err != nil {
			t.Fatal(err)
		}
		o := observation.Observation{Batch: b, Case: "sort/ints", Revision: i, Duration: 5}
		if err := s.Append(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	revs, err := s.Revisions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var gotRevs []int
	for _, r := range revs {
		gotRevs = append(gotRevs, r.Index)
	}
	if diff := cmp.Diff([]int{-1, 0, 2}, gotRevs); diff != "" {
		t.Errorf("revision order (-want +got):\n%s", diff)
	}

	obs, err := s.Observations(ctx, "sort/ints")
	if err != nil {
		t.Fatal(err)
	}
	var gotObs []int
	for _, o := range obs {
		gotObs = append(gotObs, o.Revision)
	}
	if diff := cmp.Diff([]int{-1, 0, 2}, gotObs); diff != "" {
		t.Errorf("observation order (-want +got):\n%s", diff)
	}

	max, err := observation.MaxRevision(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if max != 2 {
		t.Errorf("MaxRevision = %d, want 2", max)
	}
}

func testConcurrentRead(t *testing.T, s observation.Store) {
	ctx := context.Background()
	b, err := s.NewBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := s.Observations(ctx, "sort/ints"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		o := observation.Observation{Batch: b, Case: "sort/ints", Revision: 0, Attempt: i, Duration: time.Duration(i + 1)}
		if err := s.Append(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	got, err := s.Observations(ctx, "sort/ints")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("got %d observations, want 10", len(got))
	}
}
