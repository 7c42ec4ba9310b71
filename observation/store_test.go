// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package observation_test

import (
	"context"
	"testing"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/observation/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) observation.Store {
		return observation.NewMemStore()
	})
}

func TestMaxRevisionEmpty(t *testing.T) {
	max, err := observation.MaxRevision(context.Background(), observation.NewMemStore())
	if err != nil {
		t.Fatal(err)
	}
	if max != -1 {
		t.Errorf("MaxRevision = %d, want -1", max)
	}
}

func TestBuffer(t *testing.T) {
	var b observation.Buffer
	ctx := context.Background()
	b.Append(ctx, observation.Observation{Case: "a"})
	b.Append(ctx, observation.Observation{Case: "b"}, observation.Observation{Case: "c"})
	var got string
	for _, o := range b.Obs {
		got += o.Case
	}
	if got != "abc" {
		t.Errorf("buffer order = %q, want abc", got)
	}
}
