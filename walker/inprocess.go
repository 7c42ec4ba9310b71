// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walker

import (
	"context"
	"fmt"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

// InProcess returns a ContextFactory that resolves every case from reg
// in the current process, whatever the revision. It is useful for
// running the current code as a single revision.
func InProcess(reg *registry.Registry) ContextFactory {
	return inProcess{reg}
}

type inProcess struct {
	reg *registry.Registry
}

func (f inProcess) Enter(ctx context.Context, rev observation.Revision) (ExecContext, error) {
	return f, nil
}

func (f inProcess) Resolve(ctx context.Context, caseID string) (Resolved, error) {
	c, ok := f.reg.Lookup(caseID)
	if !ok {
		return Resolved{}, fmt.Errorf("case %q not registered", caseID)
	}
	b, _ := f.reg.Body(caseID)
	return Resolved{Fingerprint: c.Fingerprint, Invokable: b}, nil
}

// Cases returns the cases registered in reg.
func (f inProcess) Cases() []registry.Case { return f.reg.Snapshot() }

func (inProcess) Close() error { return nil }
