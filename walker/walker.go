// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package walker runs a set of benchmark cases across an ordered
// sequence of code revisions.
//
// Each revision is entered through a ContextFactory, which provides an
// ExecContext that can resolve case IDs to invokable code as it exists
// at that revision. A case whose code cannot be resolved, or whose API
// fingerprint differs from the registered one, is skipped at that
// revision and the walk goes on. A revision whose context cannot be
// established is skipped for every case, unless the failure is
// unrecoverable, in which case the walk stops.
package walker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
	"golang.org/x/perf/benchtrack/runner"
)

var (
	// ErrNoRevisions is returned by Walk when given no revisions.
	ErrNoRevisions = errors.New("no revisions to walk")
	// ErrUnordered is returned by Walk when revision indices are not
	// strictly increasing.
	ErrUnordered = errors.New("revision indices not strictly increasing")
	// ErrDuplicateCase is returned by Walk when a case ID appears twice.
	ErrDuplicateCase = errors.New("duplicate case")
	// ErrUnrecoverable marks ContextFactory errors that must stop the
	// walk instead of skipping the revision.
	ErrUnrecoverable = errors.New("unrecoverable")
)

// Resolved is a case as it exists in one execution context.
type Resolved struct {
	Fingerprint registry.Fingerprint
	Invokable   runner.Invokable
}

// An ExecContext gives access to the code at one revision.
type ExecContext interface {
	// Resolve looks up a case by ID. An error means the case does not
	// exist at this revision.
	Resolve(ctx context.Context, caseID string) (Resolved, error)
	Close() error
}

// A ContextFactory establishes execution contexts.
type ContextFactory interface {
	Enter(ctx context.Context, rev observation.Revision) (ExecContext, error)
}

// A SkipReason says why a case was skipped at a revision.
type SkipReason string

// IncompatibleAPI means the case could not be resolved at the revision
// or its fingerprint did not match.
const IncompatibleAPI SkipReason = "incompatible-api"

// A Skip records that a case produced no observations at a revision.
type Skip struct {
	Case     string
	Revision int
	Reason   SkipReason
	Detail   string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s skipped at revision %d: %s (%s)", s.Case, s.Revision, s.Reason, s.Detail)
}

// A ContextFailure records a revision whose execution context could
// not be established. Every case is skipped at that revision.
type ContextFailure struct {
	Revision int
	Err      error
}

func (f ContextFailure) String() string {
	return fmt.Sprintf("revision %d: %v", f.Revision, f.Err)
}

// Result summarizes a walk.
type Result struct {
	Batch int64
	// Walked lists the revisions whose context was established, in
	// order.
	Walked          []int
	Skips           []Skip
	ContextFailures []ContextFailure
	// Observations counts the observations recorded per case.
	Observations map[string]int
}

// A Walker walks revisions, recording observations in Store.
type Walker struct {
	Store   observation.Store
	Factory ContextFactory
	// Timeout is the default per-attempt timeout.
	Timeout time.Duration
	Logger  *zap.Logger
	// Parallel is the number of revisions to run at once. Values
	// below 2 run revisions one at a time. Cases within a revision
	// always run one at a time, and observations are recorded in
	// revision order either way.
	Parallel int

	// Hooks, called in revision order. OnAttempt is passed to the
	// runner and may be called concurrently when Parallel > 1.
	OnSkip           func(Skip)
	OnContextFailure func(ContextFailure)
	OnAttempt        func(observation.Observation)
}

func (w *Walker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// Check validates the inputs of a walk.
func Check(revs []observation.Revision, cases []registry.Case) error {
	if len(revs) == 0 {
		return ErrNoRevisions
	}
	for i := 1; i < len(revs); i++ {
		if revs[i].Index <= revs[i-1].Index {
			return fmt.Errorf("revision %d after %d: %w", revs[i].Index, revs[i-1].Index, ErrUnordered)
		}
	}
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if seen[c.ID] {
			return fmt.Errorf("%q: %w", c.ID, ErrDuplicateCase)
		}
		seen[c.ID] = true
	}
	return nil
}

// revisionResult is the outcome of one revision.
type revisionResult struct {
	walked  bool
	skips   []Skip
	failure *ContextFailure
	counts  map[string]int
	buf     *observation.Buffer
	err     error
}

// Walk runs every case n times at every revision. It returns an error
// only for invalid input, an unrecoverable context failure, a store
// failure or cancellation of ctx; in that case the returned Result
// describes the revisions completed before the error.
func (w *Walker) Walk(ctx context.Context, revs []observation.Revision, cases []registry.Case, n int) (*Result, error) {
	if err := Check(revs, cases); err != nil {
		return nil, err
	}
	batch, err := w.Store.NewBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("new batch: %w", err)
	}
	for _, c := range cases {
		if err := w.Store.PutCase(ctx, c); err != nil {
			return nil, fmt.Errorf("recording case %s: %w", c.ID, err)
		}
	}
	res := &Result{Batch: batch, Observations: make(map[string]int, len(cases))}
	for _, c := range cases {
		res.Observations[c.ID] = 0
	}
	w.logger().Info("walk", zap.Int64("batch", batch), zap.Int("revisions", len(revs)), zap.Int("cases", len(cases)))

	if w.Parallel < 2 {
		for _, rev := range revs {
			rr := w.walkRevision(ctx, batch, rev, cases, n, nil)
			if err := w.apply(ctx, res, rev, rr); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	results := make([]*revisionResult, len(revs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.Parallel)
	for i, rev := range revs {
		i, rev := i, rev
		g.Go(func() error {
			rr := w.walkRevision(gctx, batch, rev, cases, n, new(observation.Buffer))
			results[i] = rr
			return rr.err
		})
	}
	waitErr := g.Wait()
	for i, rev := range revs {
		rr := results[i]
		if rr == nil {
			break
		}
		if err := w.apply(ctx, res, rev, rr); err != nil {
			// Other revisions fail with a cancellation once one
			// fails; report the first failure.
			if waitErr != nil {
				return res, waitErr
			}
			return res, err
		}
	}
	if waitErr != nil {
		return res, waitErr
	}
	return res, ctx.Err()
}

// apply merges rr into res, flushing any buffered observations.
func (w *Walker) apply(ctx context.Context, res *Result, rev observation.Revision, rr *revisionResult) error {
	if rr.buf != nil && len(rr.buf.Obs) > 0 {
		if err := w.Store.Append(context.WithoutCancel(ctx), rr.buf.Obs...); err != nil {
			return fmt.Errorf("recording revision %d: %w", rev.Index, err)
		}
	}
	if rr.failure != nil {
		res.ContextFailures = append(res.ContextFailures, *rr.failure)
		if w.OnContextFailure != nil {
			w.OnContextFailure(*rr.failure)
		}
	}
	if rr.walked {
		res.Walked = append(res.Walked, rev.Index)
	}
	for _, s := range rr.skips {
		res.Skips = append(res.Skips, s)
		if w.OnSkip != nil {
			w.OnSkip(s)
		}
	}
	for id, k := range rr.counts {
		res.Observations[id] += k
	}
	return rr.err
}

// walkRevision runs every case at rev. Observations go to buf if it
// is non-nil and to the store otherwise.
func (w *Walker) walkRevision(ctx context.Context, batch int64, rev observation.Revision, cases []registry.Case, n int, buf *observation.Buffer) *revisionResult {
	log := w.logger().With(zap.Int("revision", rev.Index), zap.String("label", rev.Label))
	rr := &revisionResult{counts: make(map[string]int), buf: buf}
	var app observation.Appender = w.Store
	if buf != nil {
		app = buf
	}
	if err := ctx.Err(); err != nil {
		rr.err = err
		return rr
	}

	ec, err := w.Factory.Enter(ctx, rev)
	if err != nil {
		if errors.Is(err, ErrUnrecoverable) || ctx.Err() != nil {
			rr.err = fmt.Errorf("entering revision %d: %w", rev.Index, err)
			return rr
		}
		log.Warn("context failure", zap.Error(err))
		rr.failure = &ContextFailure{Revision: rev.Index, Err: err}
		return rr
	}
	defer func() {
		if err := ec.Close(); err != nil {
			log.Warn("closing context", zap.Error(err))
		}
	}()
	if err := w.Store.PutRevision(ctx, rev); err != nil {
		rr.err = fmt.Errorf("recording revision %d: %w", rev.Index, err)
		return rr
	}
	rr.walked = true

	r := &runner.Runner{
		Store:     app,
		Batch:     batch,
		Timeout:   w.Timeout,
		Logger:    w.Logger,
		OnAttempt: w.OnAttempt,
	}
	for _, c := range cases {
		resolved, err := ec.Resolve(ctx, c.ID)
		if err == nil && resolved.Fingerprint != c.Fingerprint {
			err = fmt.Errorf("fingerprint %q, registered %q", resolved.Fingerprint, c.Fingerprint)
		}
		if err != nil {
			if ctx.Err() != nil {
				rr.err = ctx.Err()
				return rr
			}
			log.Info("skip", zap.String("case", c.ID), zap.Error(err))
			rr.skips = append(rr.skips, Skip{Case: c.ID, Revision: rev.Index, Reason: IncompatibleAPI, Detail: err.Error()})
			continue
		}
		obs, err := r.Run(ctx, c, rev.Index, resolved.Invokable, n)
		rr.counts[c.ID] += len(obs)
		if err != nil {
			rr.err = err
			return rr
		}
	}
	return rr
}
