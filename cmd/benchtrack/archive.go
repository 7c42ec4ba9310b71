// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"golang.org/x/perf/benchtrack/internal/publish"
	"golang.org/x/perf/benchtrack/observation"
)

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export file",
		Short: "Write the store to a benchmark-format archive",
		Long: `Export writes every recorded observation to file in the Go benchmark
format, which benchstat and perfdata servers read. The archive is
compressed with zstd if file ends in .zst.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			arch, err := observation.Dump(cmd.Context(), s)
			if err != nil {
				return err
			}
			if err := observation.CreateArchive(args[0], arch); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "exported %d observations of %d cases to %s\n", len(arch.Observations), len(arch.Cases), args[0])
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import file",
		Short: "Load an archive into the store",
		Long: `Import adds the observations of an archive written by export. Importing
an observation that is already recorded is an error and imports
nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := observation.OpenArchive(args[0])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := observation.Load(cmd.Context(), s, arch); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "imported %d observations of %d cases\n", len(arch.Observations), len(arch.Cases))
			return nil
		},
	}
}

func (a *app) uploadCmd() *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "upload file...",
		Short: "Upload archives to a perfdata server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := &publish.Perfdata{Server: a.cfg.Perfdata.Server}
			if header != "" {
				data, err := os.ReadFile(header)
				if err != nil {
					return err
				}
				p.Header = append(bytes.TrimRight(data, "\n"), '\n', '\n')
			}
			ts, err := publish.TokenSource(ctx, a.cfg.Perfdata.Token)
			if err != nil {
				return err
			}
			p.Client = oauth2.NewClient(ctx, ts)
			status, err := p.Upload(ctx, args...)
			if err != nil {
				return err
			}
			if status.ViewURL != "" {
				fmt.Fprintln(a.stdout, status.ViewURL)
			} else {
				fmt.Fprintf(a.stdout, "uploaded %s\n", status.UploadID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&header, "header", "", "insert `file` at the beginning of each uploaded file")
	return cmd
}
