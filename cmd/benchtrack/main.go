// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Benchtrack runs benchmark suites across the history of a repository
// and reports how their performance evolved.
//
// Usage:
//
//	benchtrack [global flags] command [flags] [args]
//
// The commands are:
//
//	setup   create the observation store
//	run     benchmark the working tree as the next revision
//	walk    benchmark a sequence of git revisions
//	show    print a text summary of the recorded history
//	report  write CSV, HTML, charts, or upload to InfluxDB or GCS
//	export  write the store to a benchmark-format archive
//	import  load an archive into the store
//	upload  upload archives to a perfdata server
//
// A suite is a main package that registers cases with package registry
// and calls suite.Main. Settings are read from benchtrack.yaml, a .env
// file, BENCHTRACK_* environment variables and flags.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	_ "github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/dialers/mysql"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"golang.org/x/perf/benchtrack/internal/config"
	"golang.org/x/perf/benchtrack/internal/metrics"
	"golang.org/x/perf/benchtrack/internal/worktree"
	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/storage"
	"golang.org/x/perf/benchtrack/walker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newApp(os.Stdout, os.Stderr).root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchtrack: %v\n", err)
		os.Exit(1)
	}
}

// An app is one invocation of the command.
type app struct {
	stdout, stderr io.Writer

	v       *viper.Viper
	cfgFile string
	dotenv  string
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	// factory and revisions give access to the code under test.
	// Tests replace them.
	factory   func(cfg *config.Config, log *zap.Logger) walker.ContextFactory
	revisions func(ctx context.Context, cfg *config.Config, refs []string, base int) ([]observation.Revision, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		v:      viper.New(),
		dotenv: ".env",
		factory: func(cfg *config.Config, log *zap.Logger) walker.ContextFactory {
			return &worktree.Factory{Repo: cfg.Repo, Pkg: cfg.Pkg, Logger: log}
		},
		revisions: func(ctx context.Context, cfg *config.Config, refs []string, base int) ([]observation.Revision, error) {
			return worktree.Revisions(ctx, cfg.Repo, refs, base)
		},
	}
}

// bound lists the flags that are bound to configuration keys. The key
// is the flag name with dashes replaced by underscores.
var bound = map[string]bool{
	"store":        true,
	"dsn":          true,
	"log-level":    true,
	"metrics-file": true,
	"repo":         true,
	"pkg":          true,
	"iterations":   true,
	"timeout":      true,
	"parallel":     true,
	"merge":        true,
}

func (a *app) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "benchtrack",
		Short:         "Track benchmark performance across revisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish()
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "read settings from `file` (default benchtrack.yaml)")
	pf.String("store", "", "store `driver`: "+strings.Join(storage.Drivers(), ", "))
	pf.String("dsn", "", "store data source `name` or directory")
	pf.String("log-level", "", "log `level`: debug, info, warn or error")
	pf.String("metrics-file", "", "write Prometheus metrics to `file` after run and walk")

	cmd.AddCommand(
		a.setupCmd(),
		a.runCmd(),
		a.walkCmd(),
		a.showCmd(),
		a.reportCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.uploadCmd(),
	)
	return cmd
}

// init loads the configuration, binding the flags of the command being
// run, and sets up logging and metrics.
func (a *app) init(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bound[f.Name] && err == nil {
			err = a.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		}
	})
	if err != nil {
		return err
	}
	if a.cfg, err = config.Load(a.v, a.cfgFile, a.dotenv); err != nil {
		return err
	}
	if a.log, err = newLogger(a.cfg.LogLevel, a.stderr); err != nil {
		return err
	}
	a.metrics = metrics.New()
	return nil
}

func (a *app) finish() error {
	a.log.Sync()
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteFile(a.cfg.MetricsFile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// openStore opens the configured store.
func (a *app) openStore() (observation.Store, error) {
	a.log.Debug("opening store", zap.String("driver", a.cfg.Store), zap.String("dsn", a.cfg.DSN))
	return storage.Open(a.cfg.Store, a.cfg.DSN)
}
