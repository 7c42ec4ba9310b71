// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"golang.org/x/perf/benchtrack/aggregate"
	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
	"golang.org/x/perf/benchtrack/report"
	"golang.org/x/perf/benchtrack/storage"
	"golang.org/x/perf/benchtrack/walker"
)

func (a *app) setupCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the observation store",
		Long: `Setup creates the observation store, or checks that it can be opened.
With --overwrite, everything already recorded is discarded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if overwrite {
				if err := storage.Reset(cmd.Context(), s); err != nil {
					return fmt.Errorf("resetting store: %w", err)
				}
			}
			fmt.Fprintf(a.stdout, "%s store %s ready\n", a.cfg.Store, a.cfg.DSN)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "discard all recorded observations")
	return cmd
}

// walkFlags adds the flags shared by run and walk.
func walkFlags(cmd *cobra.Command) {
	cmd.Flags().String("repo", "", "repository `dir` containing the suite")
	cmd.Flags().String("pkg", "", "suite main `package`, relative to the repository")
	cmd.Flags().IntP("iterations", "n", 0, "attempts per case and revision (default per case, or 5)")
	cmd.Flags().Duration("timeout", 0, "per-attempt `timeout`")
	cmd.Flags().String("category", "", "only run categories containing `substr`")
}

// lister is implemented by execution contexts that can list the cases
// they have.
type lister interface {
	Cases() []registry.Case
}

// entered is a ContextFactory that hands out an execution context
// that has already been established.
type entered struct {
	ec walker.ExecContext
}

func (e entered) Enter(context.Context, observation.Revision) (walker.ExecContext, error) {
	return e.ec, nil
}

// current establishes the execution context of the working tree and
// returns it with the cases it has.
func (a *app) current(ctx context.Context, rev observation.Revision) (walker.ExecContext, []registry.Case, error) {
	if a.cfg.Pkg == "" {
		return nil, nil, errors.New("no suite package (set --pkg or pkg in the config file)")
	}
	ec, err := a.factory(a.cfg, a.log).Enter(ctx, rev)
	if err != nil {
		return nil, nil, fmt.Errorf("preparing working tree: %w", err)
	}
	l, ok := ec.(lister)
	if !ok {
		ec.Close()
		return nil, nil, fmt.Errorf("%T cannot list cases", ec)
	}
	return ec, l.Cases(), nil
}

func (a *app) walker(s observation.Store, f walker.ContextFactory) *walker.Walker {
	w := &walker.Walker{
		Store:    s,
		Factory:  f,
		Timeout:  a.cfg.Timeout,
		Logger:   a.log,
		Parallel: a.cfg.Parallel,
		OnSkip: func(sk walker.Skip) {
			a.log.Info("skip", zap.String("case", sk.Case), zap.Int("revision", sk.Revision), zap.String("detail", sk.Detail))
		},
	}
	a.metrics.Hook(w)
	return w
}

// summarize prints the report of the categories in cases after a
// walk.
func (a *app) summarize(ctx context.Context, s observation.Store, cases []registry.Case, res *walker.Result) error {
	merge, err := aggregate.ParseMerge(a.cfg.Merge)
	if err != nil {
		return err
	}
	r, err := report.Build(ctx, s, merge, "")
	if err != nil {
		return err
	}
	cats := registry.Categories(cases)
	views := r.Views[:0]
	for _, v := range r.Views {
		if _, ok := cats[v.Category]; ok {
			views = append(views, v)
		}
	}
	r.Views = views
	r.AddWalk(res)
	return report.WriteText(a.stdout, r)
}

func (a *app) runCmd() *cobra.Command {
	var dry bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Benchmark the working tree as the next revision",
		Long: `Run builds the suite in the working tree and records one batch of
observations at the revision after the last one recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			last, err := observation.MaxRevision(ctx, s)
			if err != nil {
				return err
			}
			rev := observation.Revision{Index: last + 1, Label: "current", Recorded: time.Now()}

			ec, cases, err := a.current(ctx, rev)
			if err != nil {
				return err
			}
			// The walker closes ec too; closing twice is harmless.
			defer ec.Close()
			cases = registry.Filter(cases, mustString(cmd, "category"))
			if dry {
				for _, c := range cases {
					fmt.Fprintf(a.stdout, "%s\t%s\n", c.ID, c.Category)
				}
				return nil
			}
			if len(cases) == 0 {
				return errors.New("no cases to run")
			}

			res, err := a.walker(s, entered{ec}).Walk(ctx, []observation.Revision{rev}, cases, a.cfg.Iterations)
			a.metrics.ObserveWalk(res)
			if err != nil {
				return err
			}
			return a.summarize(ctx, s, cases, res)
		},
	}
	walkFlags(cmd)
	cmd.Flags().BoolVar(&dry, "dry", false, "list the cases that would run and stop")
	return cmd
}

func (a *app) walkCmd() *cobra.Command {
	var base int
	cmd := &cobra.Command{
		Use:   "walk [flags] ref...",
		Short: "Benchmark a sequence of git revisions",
		Long: `Walk benchmarks the suite at each of the given revisions, oldest first.
A ref is a commit, tag or branch, or a range A..B of the commits after A
up to B. The cases are those of the working tree: a case that is missing
or has a different fingerprint at a revision is skipped there.

Skips and revisions that fail to build are reported but do not make the
walk fail.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if base < 0 {
				last, err := observation.MaxRevision(ctx, s)
				if err != nil {
					return err
				}
				base = last + 1
			}
			revs, err := a.revisions(ctx, a.cfg, args, base)
			if err != nil {
				return err
			}

			ec, cases, err := a.current(ctx, observation.Revision{Index: -1})
			if err != nil {
				return err
			}
			ec.Close()
			cases = registry.Filter(cases, mustString(cmd, "category"))
			if len(cases) == 0 {
				return errors.New("no cases to run")
			}

			w := a.walker(s, a.factory(a.cfg, a.log))
			w.OnContextFailure = func(f walker.ContextFailure) {
				a.log.Warn("revision failed", zap.Int("revision", f.Revision), zap.Error(f.Err))
			}
			res, err := w.Walk(ctx, revs, cases, a.cfg.Iterations)
			a.metrics.ObserveWalk(res)
			if err != nil {
				return err
			}
			return a.summarize(ctx, s, cases, res)
		},
	}
	walkFlags(cmd)
	cmd.Flags().IntVar(&base, "base", -1, "index of the first revision (default after the last recorded)")
	cmd.Flags().Int("parallel", 0, "revisions to prepare and run at once")
	return cmd
}

func mustString(cmd *cobra.Command, name string) string {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return s
}
