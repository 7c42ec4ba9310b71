// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import (
	"database/sql"
	"time"
)

func DBSQL(db *DB) *sql.DB {
	return db.sql
}

func SetNow(t time.Time) {
	if t.IsZero() {
		now = time.Now
		return
	}
	now = func() time.Time { return t }
}

func Rebind(db *DB, q string) string { return db.rebind(q) }

func InsertIgnore(db *DB, table, cols string, n int) string { return db.insertIgnore(table, cols, n) }

// WithDriver returns a copy of db that generates SQL for driver.
func WithDriver(db *DB, driver string) *DB {
	d := *db
	d.driver = driver
	return &d
}
