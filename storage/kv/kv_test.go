// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kv

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/observation/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) observation.Store {
		s, err := Open("")
		require.NoError(t, err)
		return s
	})
}

func TestKeyOrder(t *testing.T) {
	keys := []observation.Key{
		{Case: "a", Revision: 1, Batch: 9, Attempt: 0},
		{Case: "a", Revision: 2, Batch: 1, Attempt: 3},
		{Case: "a", Revision: 2, Batch: 1, Attempt: 256},
		{Case: "a", Revision: 256, Batch: 1, Attempt: 0},
	}
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytes.Compare(obsKey(keys[i-1]), obsKey(keys[i])), "key %d before %d", i-1, i)
	}
	// A case ID that extends another must not share its prefix.
	assert.False(t, bytes.HasPrefix(obsKey(observation.Key{Case: "ab"}), caseObsPrefix("a")))
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	b, err := s.NewBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, observation.Observation{Batch: b, Case: "x/y", Revision: 0, Duration: 7}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	obs, err := s.Observations(ctx, "x/y")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.EqualValues(t, 7, obs[0].Duration)

	b2, err := s.NewBatch(ctx)
	require.NoError(t, err)
	assert.Greater(t, b2, b)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, observation.Observation{Batch: 1, Case: "x", Duration: 1}))
	require.NoError(t, s.PutRevision(ctx, observation.Revision{Index: 3}))
	require.NoError(t, s.Reset(ctx))

	obs, err := s.Observations(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, obs)
	revs, err := s.Revisions(ctx)
	require.NoError(t, err)
	assert.Empty(t, revs)
}
