// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package observation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/perf/benchfmt"

	"golang.org/x/perf/benchtrack/registry"
)

// An Archive is a self-contained dump of a store's contents.
//
// Archives are written in the Go benchmark format, one result line
// per attempt, so they can be fed directly to benchstat. A successful
// attempt is written as
//
//	BenchmarkCASE 1 DURATION ns/op
//
// and a failed one as
//
//	BenchmarkCASE 1 1 failures
//
// with the failure reason in the "failure" configuration key. The case
// metadata, revision, batch and attempt index are file configuration
// keys.
type Archive struct {
	Cases        []registry.Case
	Revisions    []Revision
	Observations []Observation
}

const failureUnit = "failures"

// Dump reads the entire contents of s into an Archive.
func Dump(ctx context.Context, s Store) (*Archive, error) {
	a := new(Archive)
	var err error
	if a.Cases, err = s.Cases(ctx); err != nil {
		return nil, err
	}
	if a.Revisions, err = s.Revisions(ctx); err != nil {
		return nil, err
	}
	for _, c := range a.Cases {
		obs, err := s.Observations(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		a.Observations = append(a.Observations, obs...)
	}
	return a, nil
}

// Load appends the contents of a to s. Observations that s already
// has are an error, as in Append.
func Load(ctx context.Context, s Store, a *Archive) error {
	for _, c := range a.Cases {
		if err := s.PutCase(ctx, c); err != nil {
			return err
		}
	}
	for _, r := range a.Revisions {
		if err := s.PutRevision(ctx, r); err != nil {
			return err
		}
	}
	return s.Append(ctx, a.Observations...)
}

// WriteArchive writes a to w.
func WriteArchive(w io.Writer, a *Archive) error {
	cases := make(map[string]registry.Case, len(a.Cases))
	for _, c := range a.Cases {
		cases[c.ID] = c
	}
	labels := make(map[int]Revision, len(a.Revisions))
	for _, r := range a.Revisions {
		labels[r.Index] = r
	}

	obs := append([]Observation(nil), a.Observations...)
	sort.SliceStable(obs, func(i, j int) bool { return Less(obs[i], obs[j]) })

	bw := benchfmt.NewWriter(w)
	for _, o := range obs {
		res := &benchfmt.Result{Name: benchfmt.Name(o.Case), Iters: 1}
		set := func(key, val string) {
			if val != "" {
				res.Config = append(res.Config, benchfmt.Config{Key: key, Value: []byte(val), File: true})
			}
		}
		c := cases[o.Case]
		set("category", c.Category)
		set("name", c.Name)
		if c.Size != 0 {
			set("size", strconv.Itoa(c.Size))
		}
		set("fingerprint", string(c.Fingerprint))
		if c.Config.Iterations != 0 {
			set("iterations", strconv.Itoa(c.Config.Iterations))
		}
		if c.Config.Timeout != 0 {
			set("timeout", c.Config.Timeout.String())
		}
		rev := labels[o.Revision]
		set("revision", strconv.Itoa(o.Revision))
		set("label", rev.Label)
		set("handle", rev.Handle)
		if !rev.Recorded.IsZero() {
			set("revision-time", rev.Recorded.UTC().Format(time.RFC3339Nano))
		}
		set("batch", strconv.FormatInt(o.Batch, 10))
		set("attempt", strconv.Itoa(o.Attempt))
		if !o.Recorded.IsZero() {
			set("recorded", o.Recorded.UTC().Format(time.RFC3339Nano))
		}
		if o.OK() {
			res.Values = []benchfmt.Value{{Value: float64(o.Duration), Unit: "ns/op"}}
		} else {
			set("failure", string(o.Failure))
			set("detail", oneLine(o.Detail))
			res.Values = []benchfmt.Value{{Value: 1, Unit: failureUnit}}
		}
		if err := bw.Write(res); err != nil {
			return err
		}
	}
	return nil
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return s
}

// ReadArchive reads an archive written by WriteArchive. fileName is
// used in error messages.
func ReadArchive(r io.Reader, fileName string) (*Archive, error) {
	a := new(Archive)
	cases := make(map[string]registry.Case)
	revs := make(map[int]Revision)

	br := benchfmt.NewReader(r, fileName)
	for br.Scan() {
		var res *benchfmt.Result
		switch rec := br.Result().(type) {
		case *benchfmt.SyntaxError:
			return nil, rec
		case *benchfmt.Result:
			res = rec
		default:
			continue
		}
		o, c, rev, err := decodeResult(res)
		if err != nil {
			fileName, line := res.Pos()
			return nil, fmt.Errorf("%s:%d: %w", fileName, line, err)
		}
		if _, ok := cases[c.ID]; !ok && c.Category != "" {
			cases[c.ID] = c
		}
		if _, ok := revs[rev.Index]; !ok {
			revs[rev.Index] = rev
		}
		a.Observations = append(a.Observations, o)
	}
	if err := br.Err(); err != nil {
		return nil, err
	}

	for _, c := range cases {
		a.Cases = append(a.Cases, c)
	}
	sort.Slice(a.Cases, func(i, j int) bool { return a.Cases[i].ID < a.Cases[j].ID })
	for _, r := range revs {
		a.Revisions = append(a.Revisions, r)
	}
	sort.Slice(a.Revisions, func(i, j int) bool { return a.Revisions[i].Index < a.Revisions[j].Index })
	return a, nil
}

func decodeResult(res *benchfmt.Result) (Observation, registry.Case, Revision, error) {
	var (
		o   Observation
		c   registry.Case
		rev Revision
		err error
	)
	atoi := func(key string) int {
		v := res.GetConfig(key)
		if v == "" || err != nil {
			return 0
		}
		var n int
		n, err = strconv.Atoi(v)
		if err != nil {
			err = fmt.Errorf("bad %s %q", key, v)
		}
		return n
	}
	parseTime := func(key string) time.Time {
		v := res.GetConfig(key)
		if v == "" || err != nil {
			return time.Time{}
		}
		var t time.Time
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			err = fmt.Errorf("bad %s %q", key, v)
		}
		return t
	}

	o.Case = string(res.Name)
	o.Revision = atoi("revision")
	o.Attempt = atoi("attempt")
	o.Batch = int64(atoi("batch"))
	o.Recorded = parseTime("recorded")

	c = registry.Case{
		ID:          o.Case,
		Name:        res.GetConfig("name"),
		Category:    res.GetConfig("category"),
		Size:        atoi("size"),
		Fingerprint: registry.Fingerprint(res.GetConfig("fingerprint")),
	}
	c.Config.Iterations = atoi("iterations")
	if v := res.GetConfig("timeout"); v != "" && err == nil {
		c.Config.Timeout, err = time.ParseDuration(v)
	}

	rev = Revision{
		Index:    o.Revision,
		Label:    res.GetConfig("label"),
		Handle:   res.GetConfig("handle"),
		Recorded: parseTime("revision-time"),
	}
	if err != nil {
		return o, c, rev, err
	}

	if f := res.GetConfig("failure"); f != "" {
		o.Failure = Reason(f)
		o.Detail = res.GetConfig("detail")
		return o, c, rev, nil
	}
	for _, v := range res.Values {
		switch {
		case v.OrigUnit == "ns/op":
			o.Duration = time.Duration(v.OrigValue)
			return o, c, rev, nil
		case v.Unit == "ns/op":
			o.Duration = time.Duration(v.Value)
			return o, c, rev, nil
		case v.Unit == "sec/op":
			o.Duration = time.Duration(v.Value * 1e9)
			return o, c, rev, nil
		}
	}
	return o, c, rev, fmt.Errorf("%s: no ns/op measurement", o.Case)
}

// CreateArchive writes a to the named file, compressing it with zstd
// if the name ends in ".zst".
func CreateArchive(name string, a *Archive) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *zstd.Encoder
	if strings.HasSuffix(name, ".zst") {
		zw, err = zstd.NewWriter(bw)
		if err != nil {
			return err
		}
		w = zw
	}
	if err := WriteArchive(w, a); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// OpenArchive reads the named archive file, decompressing it if the
// name ends in ".zst".
func OpenArchive(name string) (*Archive, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(name, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return ReadArchive(r, name)
}
