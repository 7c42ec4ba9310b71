// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry holds the set of benchmark cases known to a
// process.
//
// Cases are registered explicitly, usually from init functions or the
// start of main, and the registry is then frozen with Snapshot before
// any case runs. A Case is plain metadata: its identity is its ID, not
// the function that implements it, so the same case can be matched
// across revisions of the code under test even when that function
// changes. The function itself is a Body, looked up by ID.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"
)

// A Fingerprint is an opaque token describing the API a case
// exercises. Two registrations of the same case are compatible if
// their fingerprints are equal.
type Fingerprint string

// Signature returns a Fingerprint derived from the type of fn, which
// is typically the function under benchmark. For example,
// Signature(strings.Fields) is "func(string) []string". If that
// function's signature changes in a later revision, so does the
// fingerprint.
func Signature(fn interface{}) Fingerprint {
	if fn == nil {
		return ""
	}
	return Fingerprint(reflect.TypeOf(fn).String())
}

// Config is the per-case run configuration. Zero values mean "use the
// runner's default".
type Config struct {
	Iterations int           `json:"iterations,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// A Case is a registered benchmark case.
type Case struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Size        int         `json:"size,omitempty"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Config      Config      `json:"config"`
}

// A Body is the code of a benchmark case.
//
// Setup, if non-nil, is called before every attempt with the case's
// size and returns the data passed to Run and Teardown. Only Run is
// timed. Teardown, if non-nil, is called after every attempt that got
// past Setup, including attempts that failed.
type Body struct {
	Setup    func(ctx context.Context, size int) (interface{}, error)
	Run      func(ctx context.Context, data interface{}) error
	Teardown func(data interface{})
}

// Func returns a Body with no setup or teardown.
func Func(f func(ctx context.Context) error) Body {
	return Body{Run: func(ctx context.Context, _ interface{}) error { return f(ctx) }}
}

// attempt is one prepared attempt of a Body.
type attempt struct {
	body Body
	data interface{}
}

func (a *attempt) run(ctx context.Context) error { return a.body.Run(ctx, a.data) }

func (a *attempt) release() {
	if a.body.Teardown != nil {
		a.body.Teardown(a.data)
	}
}

// Bound is a Body bound to a case size. It satisfies the invokable
// interface of package runner.
type Bound struct {
	Body Body
	Size int
}

// Prepare runs the body's setup for a single attempt and returns the
// function to time and the teardown to run afterwards.
func (b Bound) Prepare(ctx context.Context) (func(context.Context) error, func(), error) {
	a := &attempt{body: b.Body}
	if b.Body.Setup != nil {
		data, err := b.Body.Setup(ctx, b.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("setup: %w", err)
		}
		a.data = data
	}
	return a.run, a.release, nil
}

var (
	// ErrFrozen is returned when registering after Snapshot.
	ErrFrozen = errors.New("registry is frozen")
	// ErrDuplicate is returned when a case ID is registered twice.
	ErrDuplicate = errors.New("duplicate case ID")
)

// A Registry is a set of benchmark cases. It is safe for concurrent
// use.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	cases  []Case
	bodies map[string]Body
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{bodies: make(map[string]Body)}
}

// Default is the process-wide registry used by Register and
// RegisterSizes.
var Default = New()

// An Option changes how a case is registered.
type Option func(*Case)

// WithID overrides the default case ID.
func WithID(id string) Option { return func(c *Case) { c.ID = id } }

// WithFingerprint sets an explicit fingerprint.
func WithFingerprint(f Fingerprint) Option { return func(c *Case) { c.Fingerprint = f } }

// WithSignature sets the fingerprint to Signature(fn).
func WithSignature(fn interface{}) Option {
	return func(c *Case) { c.Fingerprint = Signature(fn) }
}

// WithIterations sets the number of attempts per revision.
func WithIterations(n int) Option { return func(c *Case) { c.Config.Iterations = n } }

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option { return func(c *Case) { c.Config.Timeout = d } }

// Register adds a case named name in category to r. The default ID is
// "category/name".
func (r *Registry) Register(name, category string, body Body, opts ...Option) (Case, error) {
	c := Case{Name: name, Category: category, ID: category + "/" + name}
	for _, opt := range opts {
		opt(&c)
	}
	if err := r.add(c, body); err != nil {
		return Case{}, err
	}
	return c, nil
}

// RegisterSizes registers one case per size. Each case's ID is
// "category/name/size=N" and its Setup receives N.
func (r *Registry) RegisterSizes(name, category string, sizes []int, body Body, opts ...Option) ([]Case, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("registering %s/%s: no sizes", category, name)
	}
	var cases []Case
	for _, size := range sizes {
		c := Case{Name: name, Category: category, Size: size}
		for _, opt := range opts {
			opt(&c)
		}
		base := category + "/" + name
		if c.ID != "" {
			base = c.ID
		}
		c.ID = fmt.Sprintf("%s/size=%d", base, size)
		if err := r.add(c, body); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func (r *Registry) add(c Case, body Body) error {
	if err := validate(c); err != nil {
		return fmt.Errorf("registering %q: %w", c.ID, err)
	}
	if body.Run == nil {
		return fmt.Errorf("registering %q: nil Run", c.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registering %q: %w", c.ID, ErrFrozen)
	}
	if _, ok := r.bodies[c.ID]; ok {
		return fmt.Errorf("registering %q: %w", c.ID, ErrDuplicate)
	}
	r.cases = append(r.cases, c)
	r.bodies[c.ID] = body
	return nil
}

func validate(c Case) error {
	switch {
	case c.Name == "":
		return errors.New("empty name")
	case c.Category == "":
		return errors.New("empty category")
	case c.ID == "":
		return errors.New("empty ID")
	case strings.IndexFunc(c.ID, unicode.IsSpace) >= 0:
		return errors.New("ID contains white space")
	case c.Config.Iterations < 0:
		return errors.New("negative iteration count")
	case c.Config.Timeout < 0:
		return errors.New("negative timeout")
	}
	return nil
}

// Snapshot freezes r and returns its cases in registration order.
// Calling Snapshot more than once is fine.
func (r *Registry) Snapshot() []Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return append([]Case(nil), r.cases...)
}

// Len returns the number of registered cases.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cases)
}

// Lookup returns the case with the given ID.
func (r *Registry) Lookup(id string) (Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cases {
		if c.ID == id {
			return c, true
		}
	}
	return Case{}, false
}

// Body returns the body of case id bound to its size.
func (r *Registry) Body(id string) (Bound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	body, ok := r.bodies[id]
	if !ok {
		return Bound{}, false
	}
	var size int
	for _, c := range r.cases {
		if c.ID == id {
			size = c.Size
			break
		}
	}
	return Bound{Body: body, Size: size}, true
}

// Categories maps each category to its case IDs in registration order.
func Categories(cases []Case) map[string][]string {
	m := make(map[string][]string)
	for _, c := range cases {
		m[c.Category] = append(m[c.Category], c.ID)
	}
	return m
}

// Filter returns the cases whose category contains substr. An empty
// substr matches everything.
func Filter(cases []Case, substr string) []Case {
	if substr == "" {
		return cases
	}
	var out []Case
	for _, c := range cases {
		if strings.Contains(c.Category, substr) {
			out = append(out, c)
		}
	}
	return out
}

// Register registers a case in Default and panics on error, so it
// can be used in package-level variable declarations.
func Register(name, category string, body Body, opts ...Option) Case {
	c, err := Default.Register(name, category, body, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// RegisterSizes is like Register for Default.RegisterSizes.
func RegisterSizes(name, category string, sizes []int, body Body, opts ...Option) []Case {
	cs, err := Default.RegisterSizes(name, category, sizes, body, opts...)
	if err != nil {
		panic(err)
	}
	return cs
}
