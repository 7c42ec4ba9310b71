// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runner executes benchmark cases and records one observation
// per attempt.
//
// A Runner never lets one bad attempt end the others: errors, panics
// and timeouts are recorded as failed observations. Only a failure to
// record observations, or cancellation of the caller's context, is
// returned as an error.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

const (
	// DefaultIterations is the number of attempts when neither the
	// caller nor the case specifies one.
	DefaultIterations = 5
	// DefaultTimeout is the per-attempt time budget when neither the
	// Runner nor the case specifies one.
	DefaultTimeout = time.Minute
)

// An Invokable is something that can be attempted. Prepare is called
// once per attempt; it returns the function to time and a release
// function that the Runner always calls once the attempt is over,
// even if run fails, panics or is abandoned after a timeout.
//
// registry.Bound implements Invokable.
type Invokable interface {
	Prepare(ctx context.Context) (run func(context.Context) error, release func(), err error)
}

// Timed is implemented by invokables that measure themselves, such as
// attempts run in a child process. RunTimed does one complete attempt
// and reports how long the timed part took.
type Timed interface {
	Invokable
	RunTimed(ctx context.Context) (time.Duration, error)
}

// A PanicError is a panic recovered from an attempt.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Measure performs a single attempt of inv and returns the duration of
// its run function. Panics are returned as a *PanicError.
func Measure(ctx context.Context, inv Invokable) (d time.Duration, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	if t, ok := inv.(Timed); ok {
		return t.RunTimed(ctx)
	}
	run, release, err := inv.Prepare(ctx)
	if err != nil {
		return 0, err
	}
	if release != nil {
		defer release()
	}
	start := time.Now()
	err = run(ctx)
	return time.Since(start), err
}

// A Runner runs cases and appends their observations to Store.
type Runner struct {
	Store observation.Appender
	// Batch is recorded in every observation.
	Batch int64
	// Timeout is the per-attempt budget for cases that do not set
	// their own. Zero means DefaultTimeout.
	Timeout time.Duration
	// Grace is how long to wait for an abandoned attempt to return
	// before starting the next one. Zero means the attempt's timeout.
	// Attempts never overlap: if the abandoned one is still running
	// after Grace, the remaining attempts are recorded as timeouts
	// without being run.
	Grace  time.Duration
	Logger *zap.Logger
	// OnAttempt, if non-nil, is called with every observation as it
	// is made.
	OnAttempt func(observation.Observation)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Iterations returns the number of attempts Run makes for c when asked
// for n.
func Iterations(c registry.Case, n int) int {
	switch {
	case n > 0:
		return n
	case c.Config.Iterations > 0:
		return c.Config.Iterations
	}
	return DefaultIterations
}

func (r *Runner) timeout(c registry.Case) time.Duration {
	switch {
	case c.Config.Timeout > 0:
		return c.Config.Timeout
	case r.Timeout > 0:
		return r.Timeout
	}
	return DefaultTimeout
}

// Run makes n attempts of c at the given revision and appends one
// observation per attempt, with attempt indices 0 through n-1. If n is
// not positive the case's iteration count is used.
//
// If ctx is canceled, Run stops, appends the attempts that completed
// and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, c registry.Case, revision int, inv Invokable, n int) ([]observation.Observation, error) {
	n = Iterations(c, n)
	timeout := r.timeout(c)
	log := r.logger().With(zap.String("case", c.ID), zap.Int("revision", revision))

	grace := r.Grace
	if grace <= 0 {
		grace = timeout
	}

	obs := make([]observation.Observation, 0, n)
	record := func(o observation.Observation, i int) {
		o.Batch, o.Case, o.Revision, o.Attempt = r.Batch, c.ID, revision, i
		o.Recorded = time.Now()
		if o.OK() {
			log.Debug("attempt", zap.Int("attempt", i), zap.Duration("duration", o.Duration))
		} else {
			log.Warn("attempt failed", zap.Int("attempt", i), zap.String("reason", string(o.Failure)), zap.String("detail", o.Detail))
		}
		if r.OnAttempt != nil {
			r.OnAttempt(o)
		}
		obs = append(obs, o)
	}

	var (
		runErr  error
		pending <-chan outcome // attempt abandoned after its timeout
		last    int
	)
	for i := 0; i < n; i++ {
		if pending != nil {
			done, err := settle(ctx, pending, grace)
			if err != nil {
				runErr = err
				break
			}
			if !done {
				for ; i < n; i++ {
					record(stuck(last), i)
				}
				pending = nil
				break
			}
			pending = nil
		}
		o, p, err := r.attempt(ctx, inv, timeout)
		if err != nil {
			runErr = err
			break
		}
		pending, last = p, i
		record(o, i)
	}
	if pending != nil && runErr == nil {
		if done, err := settle(ctx, pending, grace); err != nil {
			runErr = err
		} else if !done {
			log.Warn("abandoned attempt still running", zap.Int("attempt", last), zap.Duration("grace", grace))
		}
	}
	if r.Store != nil && len(obs) > 0 {
		// Completed attempts are recorded even if ctx was canceled.
		if err := r.Store.Append(context.WithoutCancel(ctx), obs...); err != nil {
			return obs, fmt.Errorf("recording %s at revision %d: %w", c.ID, revision, err)
		}
	}
	return obs, runErr
}

type outcome struct {
	d   time.Duration
	err error
}

// attempt runs one attempt and classifies its outcome. It returns an
// error only if ctx is done. If the attempt timed out and is still
// running, pending delivers its outcome once it returns.
func (r *Runner) attempt(ctx context.Context, inv Invokable, timeout time.Duration) (o observation.Observation, pending <-chan outcome, err error) {
	if err := ctx.Err(); err != nil {
		return observation.Observation{}, nil, err
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The attempt runs in its own goroutine so that a body that ignores
	// its context can be abandoned. Measure releases the attempt when
	// the body eventually returns.
	done := make(chan outcome, 1)
	go func() {
		d, err := Measure(actx, inv)
		done <- outcome{d, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		select {
		case out = <-done:
		default:
			if err := ctx.Err(); err != nil {
				return observation.Observation{}, done, err
			}
			return timedOut(timeout), done, nil
		}
	}

	if out.err == nil {
		return observation.Observation{Duration: out.d}, nil, nil
	}
	if ctx.Err() != nil {
		return observation.Observation{}, nil, ctx.Err()
	}
	if errors.Is(out.err, context.DeadlineExceeded) && actx.Err() == context.DeadlineExceeded {
		return timedOut(timeout), nil, nil
	}
	return raised(out.err), nil, nil
}

// settle waits up to grace for an abandoned attempt to return, and so
// to be released. It reports whether it did.
func settle(ctx context.Context, pending <-chan outcome, grace time.Duration) (bool, error) {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-pending:
		return true, nil
	case <-t.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// stuck is recorded for attempts not run because attempt still is.
func stuck(attempt int) observation.Observation {
	return observation.Observation{
		Failure: observation.Timeout,
		Detail:  fmt.Sprintf("not run: attempt %d still running", attempt),
	}
}

func timedOut(timeout time.Duration) observation.Observation {
	return observation.Observation{
		Failure: observation.Timeout,
		Detail:  fmt.Sprintf("exceeded %v", timeout),
	}
}

func raised(err error) observation.Observation {
	detail := err.Error()
	var p *PanicError
	if errors.As(err, &p) {
		detail += "\n\n" + string(p.Stack)
	}
	return observation.Observation{Failure: observation.Raised, Detail: detail}
}
