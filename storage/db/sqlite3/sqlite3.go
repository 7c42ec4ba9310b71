// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlite3 provides the sqlite3 driver for
// golang.org/x/perf/benchtrack/storage/db. It must be imported instead
// of go-sqlite3 so that in-memory databases are shared by every user
// of the connection pool.
package sqlite3

import (
	"database/sql"

	sqlite3 "github.com/mattn/go-sqlite3"
	"golang.org/x/perf/benchtrack/storage/db"
)

// DriverName is the database/sql driver name for stores opened
// through this package.
const DriverName = "sqlite3"

func init() {
	db.RegisterOpenHook(DriverName, func(sqldb *sql.DB) error {
		// Every connection to ":memory:" is a separate database.
		sqldb.SetMaxOpenConns(1)
		return nil
	})
}

// Version returns the version of the linked SQLite library.
func Version() string {
	v, _, _ := sqlite3.Version()
	return v
}
