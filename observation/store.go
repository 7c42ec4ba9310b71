// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package observation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/perf/benchtrack/registry"
)

// ErrExists is returned when appending an observation whose key is
// already present. Stores never overwrite observations.
var ErrExists = errors.New("observation already recorded")

// An Appender accepts new observations.
type Appender interface {
	Append(ctx context.Context, obs ...Observation) error
}

// A Store is an append-only record of observations plus the case and
// revision metadata needed to interpret them.
//
// Implementations must be safe for concurrent use. Writers are
// expected to be serialized by the caller (a single walk at a time),
// but readers may run concurrently with each other and with writes.
type Store interface {
	Appender

	// NewBatch allocates a new batch ID. Batch IDs increase.
	NewBatch(ctx context.Context) (int64, error)

	// PutCase records case metadata if no case with that ID is
	// recorded yet.
	PutCase(ctx context.Context, c registry.Case) error

	// PutRevision records revision metadata if no revision with that
	// index is recorded yet.
	PutRevision(ctx context.Context, r Revision) error

	// Observations returns every observation of caseID, ordered by
	// Less.
	Observations(ctx context.Context, caseID string) ([]Observation, error)

	// Cases returns all recorded cases ordered by ID.
	Cases(ctx context.Context) ([]registry.Case, error)

	// Revisions returns all recorded revisions ordered by index.
	Revisions(ctx context.Context) ([]Revision, error)

	Close() error
}

// MaxRevision returns the highest revision index recorded in s, or -1
// if there are none.
func MaxRevision(ctx context.Context, s Store) (int, error) {
	revs, err := s.Revisions(ctx)
	if err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return -1, nil
	}
	return revs[len(revs)-1].Index, nil
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu        sync.RWMutex
	batch     int64
	obs       map[string][]Observation
	keys      map[Key]struct{}
	cases     map[string]registry.Case
	revisions map[int]Revision
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		obs:       make(map[string][]Observation),
		keys:      make(map[Key]struct{}),
		cases:     make(map[string]registry.Case),
		revisions: make(map[int]Revision),
	}
}

func (m *MemStore) NewBatch(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch++
	return m.batch, nil
}

// Append adds obs to m. Either all of obs are added or none are.
func (m *MemStore) Append(ctx context.Context, obs ...Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[Key]struct{}, len(obs))
	for _, o := range obs {
		k := o.Key()
		if _, ok := m.keys[k]; ok {
			return fmt.Errorf("append %v: %w", o, ErrExists)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("append %v: %w", o, ErrExists)
		}
		seen[k] = struct{}{}
	}
	for _, o := range obs {
		m.keys[o.Key()] = struct{}{}
		m.obs[o.Case] = append(m.obs[o.Case], o)
	}
	return nil
}

func (m *MemStore) PutCase(ctx context.Context, c registry.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; !ok {
		m.cases[c.ID] = c
	}
	return nil
}

func (m *MemStore) PutRevision(ctx context.Context, r Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revisions[r.Index]; !ok {
		m.revisions[r.Index] = r
	}
	return nil
}

func (m *MemStore) Observations(ctx context.Context, caseID string) ([]Observation, error) {
	m.mu.RLock()
	out := append([]Observation(nil), m.obs[caseID]...)
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out, nil
}

func (m *MemStore) Cases(ctx context.Context) ([]registry.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registry.Case, 0, len(m.cases))
	for _, c := range m.cases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) Revisions(ctx context.Context) ([]Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Revision, 0, len(m.revisions))
	for _, r := range m.revisions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemStore) Close() error { return nil }

// A Buffer is an Appender that keeps observations in memory in
// append order, for later transfer to a Store.
type Buffer struct {
	mu  sync.Mutex
	Obs []Observation
}

func (b *Buffer) Append(ctx context.Context, obs ...Observation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Obs = append(b.Obs, obs...)
	return nil
}
