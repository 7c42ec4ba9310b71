// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage opens observation stores by driver name.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/storage/db"
	_ "golang.org/x/perf/benchtrack/storage/db/sqlite3"
	"golang.org/x/perf/benchtrack/storage/kv"
)

// A Resetter is a store that can discard everything it holds.
type Resetter interface {
	Reset(ctx context.Context) error
}

var openers = map[string]func(dsn string) (observation.Store, error){
	"memory": func(string) (observation.Store, error) { return observation.NewMemStore(), nil },
	"badger": func(dsn string) (observation.Store, error) { return kv.Open(dsn) },
}

func init() {
	for _, driver := range []string{"sqlite3", "mysql", "postgres"} {
		driver := driver
		openers[driver] = func(dsn string) (observation.Store, error) { return db.OpenSQL(driver, dsn) }
	}
}

// Drivers returns the supported driver names, sorted.
func Drivers() []string {
	var names []string
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the store named by driver. dsn is the data source name
// for SQL drivers and the directory for badger; it is ignored by the
// memory driver.
func Open(driver, dsn string) (observation.Store, error) {
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (have %s)", driver, strings.Join(Drivers(), ", "))
	}
	s, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return s, nil
}

// Reset discards everything in s. Stores without persistent state are
// left alone.
func Reset(ctx context.Context, s observation.Store) error {
	r, ok := s.(Resetter)
	if !ok {
		return nil
	}
	return r.Reset(ctx)
}
