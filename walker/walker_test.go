// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

// fakeFactory serves revisions from a table. A revision missing from
// code fails to enter with err[index], or with a generic error.
type fakeFactory struct {
	mu     sync.Mutex
	code   map[int]map[string]registry.Fingerprint
	err    map[int]error
	open   int
	closed int
}

func (f *fakeFactory) Enter(ctx context.Context, rev observation.Revision) (ExecContext, error) {
	if err := f.err[rev.Index]; err != nil {
		return nil, err
	}
	code, ok := f.code[rev.Index]
	if !ok {
		return nil, fmt.Errorf("no code for revision %d", rev.Index)
	}
	f.mu.Lock()
	f.open++
	f.mu.Unlock()
	return &fakeContext{f: f, rev: rev.Index, code: code}, nil
}

type fakeContext struct {
	f    *fakeFactory
	rev  int
	code map[string]registry.Fingerprint
}

func (c *fakeContext) Resolve(ctx context.Context, id string) (Resolved, error) {
	fp, ok := c.code[id]
	if !ok {
		return Resolved{}, fmt.Errorf("%s not found", id)
	}
	// Durations encode the revision so ordering can be checked.
	d := time.Duration(c.rev+1) * time.Millisecond
	body := registry.Func(func(context.Context) error { return nil })
	return Resolved{Fingerprint: fp, Invokable: fixed{body, d}}, nil
}

func (c *fakeContext) Close() error {
	c.f.mu.Lock()
	c.f.closed++
	c.f.mu.Unlock()
	return nil
}

// fixed is a self-timed invokable with a constant duration.
type fixed struct {
	registry.Body
	d time.Duration
}

func (f fixed) Prepare(ctx context.Context) (func(context.Context) error, func(), error) {
	return registry.Bound{Body: f.Body}.Prepare(ctx)
}

func (f fixed) RunTimed(ctx context.Context) (time.Duration, error) { return f.d, nil }

var (
	caseA = registry.Case{ID: "c/a", Name: "a", Category: "c", Fingerprint: "func()"}
	caseB = registry.Case{ID: "c/b", Name: "b", Category: "c", Fingerprint: "func(int)"}
)

func revs(indices ...int) []observation.Revision {
	var out []observation.Revision
	for _, i := range indices {
		out = append(out, observation.Revision{Index: i, Label: fmt.Sprint("r", i)})
	}
	return out
}

func standardFactory() *fakeFactory {
	return &fakeFactory{
		code: map[int]map[string]registry.Fingerprint{
			0: {"c/a": "func()"},
			1: {"c/a": "func()", "c/b": "func(string)"},
			3: {"c/a": "func()", "c/b": "func(int)"},
		},
		err: map[int]error{},
	}
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	store := observation.NewMemStore()
	f := standardFactory()
	var hooked []Skip
	w := &Walker{Store: store, Factory: f, OnSkip: func(s Skip) { hooked = append(hooked, s) }}

	res, err := w.Walk(ctx, revs(0, 1, 2, 3), []registry.Case{caseA, caseB}, 2)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{0, 1, 3}, res.Walked); diff != "" {
		t.Errorf("walked (-want +got):\n%s", diff)
	}
	wantSkips := []Skip{
		{Case: "c/b", Revision: 0, Reason: IncompatibleAPI},
		{Case: "c/b", Revision: 1, Reason: IncompatibleAPI},
	}
	if diff := cmp.Diff(wantSkips, res.Skips, cmpopts.IgnoreFields(Skip{}, "Detail")); diff != "" {
		t.Errorf("skips (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(res.Skips, hooked); diff != "" {
		t.Errorf("OnSkip saw (-result +hooked):\n%s", diff)
	}
	if len(res.ContextFailures) != 1 || res.ContextFailures[0].Revision != 2 {
		t.Errorf("context failures = %v, want revision 2", res.ContextFailures)
	}
	if diff := cmp.Diff(map[string]int{"c/a": 6, "c/b": 2}, res.Observations); diff != "" {
		t.Errorf("observation counts (-want +got):\n%s", diff)
	}
	if f.open != f.closed {
		t.Errorf("opened %d contexts, closed %d", f.open, f.closed)
	}

	// Every walked revision is accounted for by either a skip or
	// observations.
	for _, c := range []registry.Case{caseA, caseB} {
		obs, err := store.Observations(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		withObs := map[int]bool{}
		for _, o := range obs {
			withObs[o.Revision] = true
			if o.Batch != res.Batch {
				t.Errorf("%v has batch %d, want %d", o, o.Batch, res.Batch)
			}
		}
		skips := 0
		for _, s := range res.Skips {
			if s.Case == c.ID {
				skips++
			}
		}
		if skips+len(withObs) != len(res.Walked) {
			t.Errorf("%s: %d skips + %d revisions with observations != %d walked", c.ID, skips, len(withObs), len(res.Walked))
		}
	}

	stored, err := store.Revisions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(revs(0, 1, 3), stored); diff != "" {
		t.Errorf("stored revisions (-want +got):\n%s", diff)
	}
	cases, err := store.Cases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]registry.Case{caseA, caseB}, cases); diff != "" {
		t.Errorf("stored cases (-want +got):\n%s", diff)
	}
}

func TestWalkParallel(t *testing.T) {
	ctx := context.Background()
	run := func(parallel int) ([]observation.Observation, *Result) {
		store := observation.NewMemStore()
		w := &Walker{Store: store, Factory: standardFactory(), Parallel: parallel}
		res, err := w.Walk(ctx, revs(0, 1, 2, 3), []registry.Case{caseA, caseB}, 3)
		if err != nil {
			t.Fatal(err)
		}
		obs, err := store.Observations(ctx, "c/a")
		if err != nil {
			t.Fatal(err)
		}
		return obs, res
	}
	seqObs, seqRes := run(1)
	parObs, parRes := run(4)
	ignore := cmpopts.IgnoreFields(observation.Observation{}, "Recorded")
	if diff := cmp.Diff(seqObs, parObs, ignore); diff != "" {
		t.Errorf("parallel observations (-sequential +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(seqRes, parRes, cmpopts.IgnoreFields(ContextFailure{}, "Err")); diff != "" {
		t.Errorf("parallel result (-sequential +parallel):\n%s", diff)
	}
}

func TestWalkUnrecoverable(t *testing.T) {
	for _, parallel := range []int{1, 3} {
		t.Run(fmt.Sprint("parallel=", parallel), func(t *testing.T) {
			ctx := context.Background()
			store := observation.NewMemStore()
			f := standardFactory()
			f.err[1] = fmt.Errorf("worktree add: %w", ErrUnrecoverable)
			w := &Walker{Store: store, Factory: f, Parallel: parallel}
			res, err := w.Walk(ctx, revs(0, 1, 3), []registry.Case{caseA}, 1)
			if !errors.Is(err, ErrUnrecoverable) {
				t.Fatalf("Walk = %v, want ErrUnrecoverable", err)
			}
			for _, r := range res.Walked {
				if r != 0 {
					t.Errorf("walked revision %d past the abort", r)
				}
			}
			if parallel == 1 && len(res.Walked) != 1 {
				t.Errorf("walked %v before abort, want [0]", res.Walked)
			}
			obs, _ := store.Observations(ctx, "c/a")
			for _, o := range obs {
				if o.Revision != 0 {
					t.Errorf("recorded %v past the abort", o)
				}
			}
		})
	}
}

func TestWalkBadInput(t *testing.T) {
	w := &Walker{Store: observation.NewMemStore(), Factory: standardFactory()}
	ctx := context.Background()
	for _, test := range []struct {
		name  string
		revs  []observation.Revision
		cases []registry.Case
		want  error
	}{
		{"empty", nil, []registry.Case{caseA}, ErrNoRevisions},
		{"unordered", revs(1, 0), []registry.Case{caseA}, ErrUnordered},
		{"repeated", revs(1, 1), []registry.Case{caseA}, ErrUnordered},
		{"duplicate", revs(0), []registry.Case{caseA, caseA}, ErrDuplicateCase},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := w.Walk(ctx, test.revs, test.cases, 1); !errors.Is(err, test.want) {
				t.Errorf("Walk = %v, want %v", err, test.want)
			}
		})
	}
}

func TestWalkCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &Walker{Store: observation.NewMemStore(), Factory: standardFactory()}
	if _, err := w.Walk(ctx, revs(0, 1), []registry.Case{caseA}, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Walk = %v, want context.Canceled", err)
	}
}

func TestInProcess(t *testing.T) {
	reg := registry.New()
	calls := 0
	if _, err := reg.Register("count", "misc", registry.Func(func(context.Context) error {
		calls++
		return nil
	}), registry.WithFingerprint("v1")); err != nil {
		t.Fatal(err)
	}
	cases := reg.Snapshot()
	store := observation.NewMemStore()
	w := &Walker{Store: store, Factory: InProcess(reg)}
	res, err := w.Walk(context.Background(), revs(5), append(cases, registry.Case{ID: "misc/gone", Name: "gone", Category: "misc"}), 3)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("body ran %d times, want 3", calls)
	}
	if len(res.Skips) != 1 || res.Skips[0].Case != "misc/gone" {
		t.Errorf("skips = %v, want misc/gone", res.Skips)
	}
}
