// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func nop(ctx context.Context) error { return nil }

func TestRegister(t *testing.T) {
	r := New()
	c, err := r.Register("fields", "strings", Func(nop),
		WithSignature(strings.Fields), WithIterations(3), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	want := Case{
		ID:          "strings/fields",
		Name:        "fields",
		Category:    "strings",
		Fingerprint: "func(string) []string",
		Config:      Config{Iterations: 3, Timeout: time.Second},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("case (-want +got):\n%s", diff)
	}
	if got, ok := r.Lookup("strings/fields"); !ok || got != want {
		t.Errorf("Lookup = %+v, %v", got, ok)
	}
	if _, ok := r.Lookup("strings/split"); ok {
		t.Error("Lookup found an unregistered case")
	}
}

func TestRegisterSizes(t *testing.T) {
	r := New()
	var sizes []int
	body := Body{
		Setup: func(ctx context.Context, size int) (interface{}, error) {
			sizes = append(sizes, size)
			return size, nil
		},
		Run: func(ctx context.Context, data interface{}) error { return nil },
	}
	cs, err := r.RegisterSizes("sort", "slices", []int{10, 1000}, body, WithID("sort/ints"))
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"sort/ints/size=10", "sort/ints/size=1000"}, ids); diff != "" {
		t.Errorf("IDs (-want +got):\n%s", diff)
	}

	b, ok := r.Body("sort/ints/size=1000")
	if !ok {
		t.Fatal("no body")
	}
	run, release, err := b.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background()); err != nil {
		t.Fatal(err)
	}
	release()
	if diff := cmp.Diff([]int{1000}, sizes); diff != "" {
		t.Errorf("setup sizes (-want +got):\n%s", diff)
	}

	if _, err := r.RegisterSizes("x", "y", nil, body); err == nil {
		t.Error("registered no sizes")
	}
}

func TestRegisterErrors(t *testing.T) {
	r := New()
	if _, err := r.Register("a", "c", Func(nop)); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		name, category string
		body           Body
		opts           []Option
		is             error
	}{
		{name: "a", category: "c", body: Func(nop), is: ErrDuplicate},
		{name: "", category: "c", body: Func(nop)},
		{name: "b", category: "", body: Func(nop)},
		{name: "b", category: "c", body: Body{}},
		{name: "b c", category: "c", body: Func(nop)},
		{name: "b", category: "c", body: Func(nop), opts: []Option{WithIterations(-1)}},
		{name: "b", category: "c", body: Func(nop), opts: []Option{WithTimeout(-time.Second)}},
	} {
		_, err := r.Register(tc.name, tc.category, tc.body, tc.opts...)
		if err == nil {
			t.Errorf("Register(%q, %q) succeeded", tc.name, tc.category)
			continue
		}
		if tc.is != nil && !errors.Is(err, tc.is) {
			t.Errorf("Register(%q, %q) = %v, want %v", tc.name, tc.category, err, tc.is)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d after failed registrations, want 1", r.Len())
	}
}

func TestSnapshotFreezes(t *testing.T) {
	r := New()
	r.Register("a", "c", Func(nop))
	r.Register("b", "c", Func(nop))
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "c/a" || snap[1].ID != "c/b" {
		t.Errorf("Snapshot = %v", snap)
	}
	if _, err := r.Register("d", "c", Func(nop)); !errors.Is(err, ErrFrozen) {
		t.Errorf("Register after Snapshot = %v, want ErrFrozen", err)
	}
	if again := r.Snapshot(); len(again) != 2 {
		t.Errorf("second Snapshot has %d cases", len(again))
	}
}

func TestPrepareSetupError(t *testing.T) {
	torn := false
	b := Bound{Body: Body{
		Setup:    func(ctx context.Context, size int) (interface{}, error) { return nil, errors.New("no data") },
		Run:      func(ctx context.Context, data interface{}) error { return nil },
		Teardown: func(interface{}) { torn = true },
	}}
	_, _, err := b.Prepare(context.Background())
	if err == nil || err.Error() != "setup: no data" {
		t.Errorf("Prepare = %v, want setup: no data", err)
	}
	if torn {
		t.Error("teardown ran after failed setup")
	}
}

func TestCategoriesFilter(t *testing.T) {
	cases := []Case{
		{ID: "net/a", Category: "net"},
		{ID: "strings/b", Category: "strings"},
		{ID: "net/c", Category: "net"},
	}
	want := map[string][]string{"net": {"net/a", "net/c"}, "strings": {"strings/b"}}
	if diff := cmp.Diff(want, Categories(cases)); diff != "" {
		t.Errorf("Categories (-want +got):\n%s", diff)
	}
	if got := Filter(cases, "str"); len(got) != 1 || got[0].ID != "strings/b" {
		t.Errorf("Filter(str) = %v", got)
	}
	if got := Filter(cases, ""); len(got) != 3 {
		t.Errorf("Filter(\"\") = %v", got)
	}
}
