// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package suite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/perf/benchtrack/registry"
	"golang.org/x/perf/benchtrack/runner"
	"golang.org/x/perf/benchtrack/walker"
)

// A Binary is a built suite program.
type Binary struct {
	Path string
	// Dir is the working directory of the child processes. If empty,
	// the current directory is used.
	Dir string
	// Env is added to the environment of the child processes.
	Env []string
}

func (b *Binary) command(ctx context.Context, args ...string) (*exec.Cmd, *bytes.Buffer, *bytes.Buffer) {
	cmd := exec.CommandContext(ctx, b.Path, args...)
	cmd.Dir = b.Dir
	// Don't wait forever for output from processes the child started.
	cmd.WaitDelay = time.Second
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	return cmd, &stdout, &stderr
}

// List returns the cases registered in b.
func (b *Binary) List(ctx context.Context) ([]registry.Case, error) {
	cmd, stdout, stderr := b.command(ctx, "-"+listFlag)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s -%s: %v\n%s", b.Path, listFlag, err, stderr.Bytes())
	}
	var cases []registry.Case
	if err := json.Unmarshal(stdout.Bytes(), &cases); err != nil {
		return nil, fmt.Errorf("%s -%s: %v", b.Path, listFlag, err)
	}
	return cases, nil
}

// Invokable returns an invokable that runs one attempt of case id per
// child process. The child is killed when the attempt's context is
// done.
func (b *Binary) Invokable(id string) runner.Timed {
	return &attempt{b: b, id: id}
}

type attempt struct {
	b  *Binary
	id string
}

// Prepare is only used by callers that time attempts themselves, in
// which case process start-up is included in the measurement.
func (a *attempt) Prepare(ctx context.Context) (func(context.Context) error, func(), error) {
	run := func(ctx context.Context) error {
		_, err := a.RunTimed(ctx)
		return err
	}
	return run, func() {}, nil
}

func (a *attempt) RunTimed(ctx context.Context) (time.Duration, error) {
	cmd, stdout, stderr := a.b.command(ctx, "-"+attemptFlag+"="+a.id)
	err := cmd.Run()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %v\n%s", a.id, err, strings.TrimSpace(stderr.String()))
	}
	out, err := lastOutcome(stdout.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%s: %v", a.id, err)
	}
	switch {
	case out.Panic != "":
		return 0, &runner.PanicError{Value: out.Panic, Stack: []byte(out.Stack)}
	case out.Error != "":
		return 0, errors.New(out.Error)
	}
	return time.Duration(out.NS), nil
}

// lastOutcome decodes the last line of out. Earlier lines are whatever
// the benchmarked code printed.
func lastOutcome(out []byte) (Outcome, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := lines[len(lines)-1]
	var o Outcome
	if err := json.Unmarshal([]byte(last), &o); err != nil {
		return o, fmt.Errorf("bad attempt output %q: %v", last, err)
	}
	return o, nil
}

// A Context is a walker.ExecContext that resolves cases against the
// cases a Binary lists.
type Context struct {
	Binary *Binary
	list   []registry.Case
	cases  map[string]registry.Case
}

// NewContext lists the cases of b.
func NewContext(ctx context.Context, b *Binary) (*Context, error) {
	cases, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	c := &Context{Binary: b, list: cases, cases: make(map[string]registry.Case, len(cases))}
	for _, cs := range cases {
		c.cases[cs.ID] = cs
	}
	return c, nil
}

func (c *Context) Resolve(ctx context.Context, caseID string) (walker.Resolved, error) {
	cs, ok := c.cases[caseID]
	if !ok {
		return walker.Resolved{}, fmt.Errorf("case %q not in %s", caseID, c.Binary.Path)
	}
	return walker.Resolved{Fingerprint: cs.Fingerprint, Invokable: c.Binary.Invokable(caseID)}, nil
}

// Cases returns the cases the binary lists, in registration order.
func (c *Context) Cases() []registry.Case { return c.list }

// Close does nothing. The owner of the binary removes it.
func (c *Context) Close() error { return nil }
