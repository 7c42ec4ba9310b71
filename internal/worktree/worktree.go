// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package worktree provides revisions from a git repository and
// execution contexts that build a suite program at each of them.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/suite"
	"golang.org/x/perf/benchtrack/walker"
)

// git runs a git command in dir and returns its trimmed standard
// output.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v\n%s", strings.Join(args, " "), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Revisions resolves refs in the repository at repo into a sequence of
// revisions numbered from base. A ref is anything git rev-parse
// accepts, or a range "A..B", which stands for the commits reachable
// from B but not from A, oldest first. A commit that appears more than
// once keeps its first position.
func Revisions(ctx context.Context, repo string, refs []string, base int) ([]observation.Revision, error) {
	type commit struct{ hash, label string }
	var commits []commit
	seen := make(map[string]bool)
	for _, ref := range refs {
		if strings.Contains(ref, "..") {
			out, err := git(ctx, repo, "rev-list", "--reverse", ref)
			if err != nil {
				return nil, err
			}
			for _, h := range strings.Fields(out) {
				if !seen[h] {
					seen[h] = true
					commits = append(commits, commit{hash: h})
				}
			}
			continue
		}
		h, err := git(ctx, repo, "rev-parse", "--verify", ref+"^{commit}")
		if err != nil {
			return nil, err
		}
		if !seen[h] {
			seen[h] = true
			commits = append(commits, commit{h, ref})
		}
	}

	revs := make([]observation.Revision, 0, len(commits))
	for i, c := range commits {
		out, err := git(ctx, repo, "show", "-s", "--format=%h %cI", c.hash)
		if err != nil {
			return nil, err
		}
		short, date, _ := strings.Cut(out, " ")
		rev := observation.Revision{Index: base + i, Label: c.label, Handle: c.hash}
		if rev.Label == "" {
			rev.Label = short
		}
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			rev.Recorded = t
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// A Factory is a walker.ContextFactory that builds a suite program at
// each revision of a git repository.
//
// For a revision with a handle, Enter checks the commit out into a new
// detached worktree. A revision without a handle uses the repository's
// working tree as is, which is how the current code is run. In either
// case the suite package is built there and listed.
type Factory struct {
	// Repo is the root of the repository.
	Repo string
	// Pkg is the suite main package, relative to the repository
	// root, such as "./bench".
	Pkg string
	// TempDir is where worktrees and binaries are created. If
	// empty, the system temporary directory is used.
	TempDir string
	// Env is added to the environment of builds and suite processes.
	Env    []string
	Logger *zap.Logger
}

func (f *Factory) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Enter prepares rev. A worktree that cannot be created is an
// unrecoverable error. A suite that does not build or list is a
// context failure for rev only.
func (f *Factory) Enter(ctx context.Context, rev observation.Revision) (walker.ExecContext, error) {
	dir, err := os.MkdirTemp(f.TempDir, "benchtrack-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walker.ErrUnrecoverable, err)
	}
	ec := &execContext{f: f, dir: dir, src: f.Repo}
	if rev.Handle != "" {
		ec.src = filepath.Join(dir, "src")
		if _, err := git(ctx, f.Repo, "worktree", "add", "--detach", ec.src, rev.Handle); err != nil {
			ec.Close()
			return nil, fmt.Errorf("%w: %v", walker.ErrUnrecoverable, err)
		}
		ec.worktree = true
	}

	bin := filepath.Join(dir, "suite")
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	start := time.Now()
	if err := f.build(ctx, ec.src, bin); err != nil {
		ec.Close()
		return nil, err
	}
	f.logger().Debug("built suite", zap.String("revision", rev.String()), zap.Duration("took", time.Since(start)))

	b := &suite.Binary{Path: bin, Dir: ec.src, Env: f.Env}
	if ec.Context, err = suite.NewContext(ctx, b); err != nil {
		ec.Close()
		return nil, err
	}
	return ec, nil
}

func (f *Factory) build(ctx context.Context, src, bin string) error {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, f.Pkg)
	cmd.Dir = src
	cmd.Env = append(os.Environ(), f.Env...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("building %s: %v\n%s", f.Pkg, err, bytes.TrimSpace(out.Bytes()))
	}
	return nil
}

type execContext struct {
	*suite.Context
	f        *Factory
	dir      string
	src      string
	worktree bool
}

// Close removes the worktree and the binary.
func (ec *execContext) Close() error {
	var err error
	if ec.worktree {
		ctx := context.Background()
		if _, err = git(ctx, ec.f.Repo, "worktree", "remove", "--force", ec.src); err != nil {
			ec.f.logger().Warn("removing worktree", zap.Error(err))
		}
		if _, perr := git(ctx, ec.f.Repo, "worktree", "prune"); perr != nil {
			ec.f.logger().Warn("pruning worktrees", zap.Error(perr))
		}
	}
	if rerr := os.RemoveAll(ec.dir); err == nil {
		err = rerr
	}
	return err
}
