// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"golang.org/x/perf/benchtrack/aggregate"
	"golang.org/x/perf/benchtrack/internal/publish"
	"golang.org/x/perf/benchtrack/report"
	"golang.org/x/perf/benchtrack/report/influx"
)

func reportFlags(cmd *cobra.Command) {
	cmd.Flags().String("category", "", "only report categories containing `substr`")
	cmd.Flags().String("merge", "", "how to combine batches at one revision: replace or combine")
}

// build assembles the report selected by the command's flags.
func (a *app) build(cmd *cobra.Command) (*report.Report, error) {
	merge, err := aggregate.ParseMerge(a.cfg.Merge)
	if err != nil {
		return nil, err
	}
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return report.Build(cmd.Context(), s, merge, mustString(cmd, "category"))
}

func (a *app) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a text summary of the recorded history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.build(cmd)
			if err != nil {
				return err
			}
			if len(r.Views) == 0 {
				fmt.Fprintln(a.stdout, "no observations recorded")
				return nil
			}
			return report.WriteText(a.stdout, r)
		},
	}
	reportFlags(cmd)
	return cmd
}

type reportOptions struct {
	csvDir   string
	htmlFile string
	chartDir string
	format   string
	influx   bool
	gcs      bool
}

func (a *app) reportCmd() *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write or publish reports of the recorded history",
		Long: `Report writes the recorded history in the requested forms: one CSV file
and one chart per category, and a single HTML page that links the
charts. With --influx, points are written to the configured InfluxDB
bucket. With --gcs, every file written is uploaded to the configured
Cloud Storage bucket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.csvDir == "" && opts.htmlFile == "" && opts.chartDir == "" && !opts.influx {
				return errors.New("nothing to do: use --csv, --html, --chart or --influx")
			}
			r, err := a.build(cmd)
			if err != nil {
				return err
			}
			files, err := a.writeReports(r, opts)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(a.stdout, f)
			}
			if opts.influx {
				if err := a.writeInflux(cmd.Context(), r); err != nil {
					return err
				}
			}
			if opts.gcs {
				return a.publishGCS(cmd.Context(), files)
			}
			return nil
		},
	}
	reportFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.csvDir, "csv", "", "write one CSV file per category into `dir`")
	f.StringVar(&opts.htmlFile, "html", "", "write an HTML report to `file`")
	f.StringVar(&opts.chartDir, "chart", "", "write one chart per category into `dir`")
	f.StringVar(&opts.format, "format", "png", "chart `format`: png or svg")
	f.BoolVar(&opts.influx, "influx", false, "write points to InfluxDB")
	f.BoolVar(&opts.gcs, "gcs", false, "upload the written files to Cloud Storage")
	return cmd
}

// writeReports writes the file reports selected by opts and returns
// the files written.
func (a *app) writeReports(r *report.Report, opts reportOptions) ([]string, error) {
	var files []string
	if opts.csvDir != "" {
		paths, err := report.SaveCSV(opts.csvDir, r)
		files = append(files, paths...)
		if err != nil {
			return files, err
		}
	}
	charts := make(map[string]string)
	if opts.chartDir != "" {
		if opts.format != "png" && opts.format != "svg" {
			return files, fmt.Errorf("unknown chart format %q", opts.format)
		}
		paths, err := report.SaveCharts(opts.chartDir, opts.format, r)
		files = append(files, paths...)
		if err != nil {
			return files, err
		}
		for i, p := range paths {
			charts[r.Views[i].Category] = p
		}
	}
	if opts.htmlFile != "" {
		// Charts are linked relative to the page.
		for cat, p := range charts {
			if rel, err := filepath.Rel(filepath.Dir(opts.htmlFile), p); err == nil {
				charts[cat] = filepath.ToSlash(rel)
			}
		}
		f, err := os.Create(opts.htmlFile)
		if err != nil {
			return files, err
		}
		err = report.WriteHTML(f, r, charts)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return files, err
		}
		files = append(files, opts.htmlFile)
	}
	return files, nil
}

func (a *app) writeInflux(ctx context.Context, r *report.Report) error {
	c := a.cfg.Influx
	sink, err := influx.New(influx.Options{URL: c.URL, Token: c.Token, Org: c.Org, Bucket: c.Bucket})
	if err != nil {
		return err
	}
	defer sink.Close()
	n, err := sink.Write(ctx, r)
	if err != nil {
		return fmt.Errorf("writing to InfluxDB: %w", err)
	}
	a.log.Info("wrote points", zap.Int("points", n), zap.String("bucket", c.Bucket))
	return nil
}

func (a *app) publishGCS(ctx context.Context, files []string) error {
	b, err := publish.NewBucket(ctx, a.cfg.GCS.Bucket, a.cfg.GCS.Prefix)
	if err != nil {
		return err
	}
	defer b.Close()
	for _, f := range files {
		url, err := b.UploadFile(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, url)
	}
	return nil
}
