// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package suite turns a program that registers benchmark cases into a
// benchmark binary, and runs such binaries.
//
// A suite program is a main package that registers its cases and calls
// Main, much as a test binary calls testing.Main:
//
//	func main() {
//		registry.Register("fields", "strings", registry.Func(benchFields))
//		suite.Main(registry.Default)
//	}
//
// Built at a given revision, the binary answers two requests:
//
//	-benchtrack.list        print the registered cases as JSON
//	-benchtrack.attempt=ID  run one attempt of case ID and print
//	                        {"ns":N} or {"error":"..."}
//
// Every attempt runs in its own process, so an attempt that hangs can
// be killed without disturbing the others.
package suite

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/perf/benchtrack/registry"
	"golang.org/x/perf/benchtrack/runner"
)

const (
	listFlag    = "benchtrack.list"
	attemptFlag = "benchtrack.attempt"
)

// An Outcome is the result of one attempt as printed by a suite
// binary.
type Outcome struct {
	NS    int64  `json:"ns,omitempty"`
	Error string `json:"error,omitempty"`
	// Panic and Stack are set if the attempt panicked.
	Panic string `json:"panic,omitempty"`
	Stack string `json:"stack,omitempty"`
}

// Main serves the request on the command line using the cases in reg,
// then exits.
func Main(reg *registry.Registry) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, reg, os.Args[0], os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, reg *registry.Registry, name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	list := fs.Bool(listFlag, false, "print the registered cases as JSON")
	attempt := fs.String(attemptFlag, "", "run one attempt of case `id`")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cases := reg.Snapshot()

	switch {
	case *list:
		if cases == nil {
			cases = []registry.Case{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "\t")
		if err := enc.Encode(cases); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0

	case *attempt != "":
		body, ok := reg.Body(*attempt)
		if !ok {
			fmt.Fprintf(stderr, "unknown case %q\n", *attempt)
			return 1
		}
		d, err := runner.Measure(ctx, body)
		var out Outcome
		var p *runner.PanicError
		switch {
		case errors.As(err, &p):
			out.Panic = fmt.Sprint(p.Value)
			out.Stack = string(p.Stack)
		case err != nil:
			out.Error = err.Error()
		default:
			out.NS = int64(d)
		}
		if err := json.NewEncoder(stdout).Encode(out); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "usage: %s -%s | -%s=id\n", name, listFlag, attemptFlag)
	fs.PrintDefaults()
	return 2
}
