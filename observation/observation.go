// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package observation defines raw benchmark observations and the
// append-only stores that hold them.
//
// An Observation is the outcome of one attempt of one case at one
// revision: either a duration or a failure. Observations are never
// modified or deleted once recorded, so that performance claims about
// old revisions stay auditable. Everything derived from them
// (summaries, series, charts) is recomputed on demand.
package observation

import (
	"fmt"
	"time"
)

// A Reason classifies a failed attempt.
type Reason string

const (
	// Timeout means the attempt exceeded its time budget.
	Timeout Reason = "timeout"
	// Raised means the benchmarked code returned an error or
	// panicked, or its setup did.
	Raised Reason = "raised"
)

// A Revision is one point in the walked sequence of code revisions.
//
// Index is the ordinal position in the sequence and is the only
// ordering key for history. Recorded is informational.
type Revision struct {
	Index    int       `json:"index"`
	Label    string    `json:"label,omitempty"`
	Handle   string    `json:"handle,omitempty"`
	Recorded time.Time `json:"recorded,omitempty"`
}

func (r Revision) String() string {
	if r.Label == "" {
		return fmt.Sprintf("#%d", r.Index)
	}
	return fmt.Sprintf("#%d (%s)", r.Index, r.Label)
}

// An Observation is the outcome of a single attempt.
type Observation struct {
	// Batch identifies the run that recorded this observation.
	// Attempt indices are unique within (Batch, Case, Revision).
	Batch    int64  `json:"batch"`
	Case     string `json:"case"`
	Revision int    `json:"revision"`
	Attempt  int    `json:"attempt"`

	// Duration is the measured time of a successful attempt.
	// It is meaningless if Failure is set.
	Duration time.Duration `json:"ns,omitempty"`

	// Failure is the reason a failed attempt failed, or "" if
	// the attempt succeeded.
	Failure Reason `json:"failure,omitempty"`
	Detail  string `json:"detail,omitempty"`

	Recorded time.Time `json:"recorded,omitempty"`
}

// OK reports whether o is a successful attempt.
func (o Observation) OK() bool { return o.Failure == "" }

// Key is the identity of an Observation in a store.
type Key struct {
	Batch    int64
	Case     string
	Revision int
	Attempt  int
}

// Key returns o's store key.
func (o Observation) Key() Key {
	return Key{o.Batch, o.Case, o.Revision, o.Attempt}
}

func (o Observation) String() string {
	if o.OK() {
		return fmt.Sprintf("%s@%d[%d] %v", o.Case, o.Revision, o.Attempt, o.Duration)
	}
	return fmt.Sprintf("%s@%d[%d] %s", o.Case, o.Revision, o.Attempt, o.Failure)
}

// Less orders observations by revision, then batch, case and attempt.
func Less(a, b Observation) bool {
	if a.Revision != b.Revision {
		return a.Revision < b.Revision
	}
	if a.Batch != b.Batch {
		return a.Batch < b.Batch
	}
	if a.Case != b.Case {
		return a.Case < b.Case
	}
	return a.Attempt < b.Attempt
}
