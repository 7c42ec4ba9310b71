// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db implements observation.Store on top of a SQL database.
package db

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/registry"
)

// DB is an observation.Store backed by a SQL database. It's safe for
// concurrent use by multiple goroutines.
type DB struct {
	sql    *sql.DB // underlying database connection
	driver string
	// prepared statements
	insertBatch       *sql.Stmt
	insertCase        *sql.Stmt
	insertRevision    *sql.Stmt
	insertObservation *sql.Stmt
	observationExists *sql.Stmt
}

var _ observation.Store = (*DB)(nil)

// OpenSQL creates a DB backed by a SQL database, creating any missing
// tables. The parameters are the same as the parameters for sql.Open.
// The sqlite3, mysql and postgres drivers are supported; other
// database engines will receive MySQL query syntax which may or may
// not be compatible.
func OpenSQL(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if hook := openHooks[driverName]; hook != nil {
		if err := hook(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	d := &DB{sql: db, driver: driverName}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

var openHooks = make(map[string]func(*sql.DB) error)

// RegisterOpenHook registers a hook to be called after opening a connection to driverName.
// This is used by the sqlite3 package to limit the connection pool.
// It must be called from an init function.
func RegisterOpenHook(driverName string, hook func(*sql.DB) error) {
	openHooks[driverName] = hook
}

// createTmpl is the template used to prepare the CREATE statements
// for the database. It is evaluated with . as a map containing one
// entry whose key is the driver name.
//
// Times are stored as Unix nanoseconds, with 0 for the zero time.
var createTmpl = template.Must(template.New("create").Parse(`
CREATE TABLE IF NOT EXISTS Batches (
	BatchID {{if .sqlite3}}INTEGER PRIMARY KEY AUTOINCREMENT{{else if .postgres}}BIGSERIAL PRIMARY KEY{{else}}BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT{{end}},
	Created BIGINT
);
CREATE TABLE IF NOT EXISTS Cases (
	CaseID VARCHAR(255) PRIMARY KEY,
	Name VARCHAR(255),
	Category VARCHAR(255),
	Size BIGINT,
	Fingerprint VARCHAR(1024),
	Iterations INT,
	TimeoutNs BIGINT
);
CREATE TABLE IF NOT EXISTS Revisions (
	RevisionIndex BIGINT PRIMARY KEY,
	Label VARCHAR(255),
	Handle VARCHAR(255),
	Recorded BIGINT
);
CREATE TABLE IF NOT EXISTS Observations (
	BatchID BIGINT,
	CaseID VARCHAR(255),
	RevisionIndex BIGINT,
	Attempt INT,
	DurationNs BIGINT,
	Failure VARCHAR(32),
	Detail TEXT,
	Recorded BIGINT,
	PRIMARY KEY (BatchID, CaseID, RevisionIndex, Attempt)
);
{{if .sqlite3}}
CREATE INDEX IF NOT EXISTS ObservationsCase ON Observations(CaseID, RevisionIndex);
{{end}}
`))

var tables = []string{"Observations", "Revisions", "Cases", "Batches"}

// createTables creates any missing tables on the connection in
// db.sql. db.driver is used to select the correct syntax.
func (db *DB) createTables() error {
	var buf bytes.Buffer
	if err := createTmpl.Execute(&buf, map[string]bool{db.driver: true}); err != nil {
		return err
	}
	for _, q := range strings.Split(buf.String(), ";") {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if _, err := db.sql.Exec(q); err != nil {
			return fmt.Errorf("create table: %v", err)
		}
	}
	return nil
}

// insertIgnore returns an INSERT statement for table that does
// nothing when the row's primary key already exists.
func (db *DB) insertIgnore(table, cols string, n int) string {
	vals := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	switch db.driver {
	case "sqlite3":
		return fmt.Sprintf("INSERT OR IGNORE INTO %s(%s) VALUES (%s)", table, cols, vals)
	case "postgres":
		return fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s) ON CONFLICT DO NOTHING", table, cols, vals)
	}
	return fmt.Sprintf("INSERT IGNORE INTO %s(%s) VALUES (%s)", table, cols, vals)
}

// rebind rewrites ? placeholders into the driver's syntax.
func (db *DB) rebind(q string) string {
	if db.driver != "postgres" {
		return q
	}
	var buf strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			buf.WriteByte('$')
			buf.WriteString(strconv.Itoa(n))
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

// prepareStatements calls db.sql.Prepare on reusable SQL statements.
func (db *DB) prepareStatements() error {
	var err error
	prepare := func(q string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = db.sql.Prepare(db.rebind(q))
		return stmt
	}
	q := "INSERT INTO Batches(Created) VALUES (?)"
	if db.driver == "postgres" {
		q += " RETURNING BatchID"
	}
	db.insertBatch = prepare(q)
	db.insertCase = prepare(db.insertIgnore("Cases", "CaseID, Name, Category, Size, Fingerprint, Iterations, TimeoutNs", 7))
	db.insertRevision = prepare(db.insertIgnore("Revisions", "RevisionIndex, Label, Handle, Recorded", 4))
	db.insertObservation = prepare("INSERT INTO Observations(BatchID, CaseID, RevisionIndex, Attempt, DurationNs, Failure, Detail, Recorded) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	db.observationExists = prepare("SELECT COUNT(*) FROM Observations WHERE BatchID = ? AND CaseID = ? AND RevisionIndex = ? AND Attempt = ?")
	return err
}

// now is a hook for testing
var now = time.Now

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// NewBatch inserts a new row into Batches and returns its ID.
func (db *DB) NewBatch(ctx context.Context) (int64, error) {
	if db.driver == "postgres" {
		var id int64
		err := db.insertBatch.QueryRowContext(ctx, unixNano(now())).Scan(&id)
		return id, err
	}
	res, err := db.insertBatch.ExecContext(ctx, unixNano(now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Append inserts obs in a single transaction. If any observation is
// already recorded, nothing is inserted and the error wraps
// observation.ErrExists.
func (db *DB) Append(ctx context.Context, obs ...observation.Observation) (err error) {
	if len(obs) == 0 {
		return nil
	}
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	exists := tx.StmtContext(ctx, db.observationExists)
	insert := tx.StmtContext(ctx, db.insertObservation)
	seen := make(map[observation.Key]bool, len(obs))
	for _, o := range obs {
		k := o.Key()
		var n int
		if err := exists.QueryRowContext(ctx, k.Batch, k.Case, k.Revision, k.Attempt).Scan(&n); err != nil {
			return err
		}
		if n > 0 || seen[k] {
			return fmt.Errorf("append %v: %w", o, observation.ErrExists)
		}
		seen[k] = true
		if _, err := insert.ExecContext(ctx, k.Batch, k.Case, k.Revision, k.Attempt,
			int64(o.Duration), string(o.Failure), o.Detail, unixNano(o.Recorded)); err != nil {
			return fmt.Errorf("append %v: %v", o, err)
		}
	}
	return nil
}

// PutCase records c unless a case with the same ID exists.
func (db *DB) PutCase(ctx context.Context, c registry.Case) error {
	_, err := db.insertCase.ExecContext(ctx, c.ID, c.Name, c.Category, c.Size,
		string(c.Fingerprint), c.Config.Iterations, int64(c.Config.Timeout))
	return err
}

// PutRevision records r unless a revision with the same index exists.
func (db *DB) PutRevision(ctx context.Context, r observation.Revision) error {
	_, err := db.insertRevision.ExecContext(ctx, r.Index, r.Label, r.Handle, unixNano(r.Recorded))
	return err
}

func (db *DB) Observations(ctx context.Context, caseID string) ([]observation.Observation, error) {
	rows, err := db.sql.QueryContext(ctx, db.rebind(
		"SELECT BatchID, RevisionIndex, Attempt, DurationNs, Failure, Detail, Recorded FROM Observations WHERE CaseID = ? ORDER BY RevisionIndex, BatchID, Attempt"),
		caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []observation.Observation
	for rows.Next() {
		o := observation.Observation{Case: caseID}
		var dur, recorded int64
		var failure string
		if err := rows.Scan(&o.Batch, &o.Revision, &o.Attempt, &dur, &failure, &o.Detail, &recorded); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(dur)
		o.Failure = observation.Reason(failure)
		o.Recorded = fromUnixNano(recorded)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (db *DB) Cases(ctx context.Context) ([]registry.Case, error) {
	rows, err := db.sql.QueryContext(ctx,
		"SELECT CaseID, Name, Category, Size, Fingerprint, Iterations, TimeoutNs FROM Cases ORDER BY CaseID")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []registry.Case
	for rows.Next() {
		var c registry.Case
		var fp string
		var timeout int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Category, &c.Size, &fp, &c.Config.Iterations, &timeout); err != nil {
			return nil, err
		}
		c.Fingerprint = registry.Fingerprint(fp)
		c.Config.Timeout = time.Duration(timeout)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) Revisions(ctx context.Context) ([]observation.Revision, error) {
	rows, err := db.sql.QueryContext(ctx,
		"SELECT RevisionIndex, Label, Handle, Recorded FROM Revisions ORDER BY RevisionIndex")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []observation.Revision
	for rows.Next() {
		var r observation.Revision
		var recorded int64
		if err := rows.Scan(&r.Index, &r.Label, &r.Handle, &recorded); err != nil {
			return nil, err
		}
		r.Recorded = fromUnixNano(recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountObservations returns the number of rows in the Observations
// table.
func (db *DB) CountObservations(ctx context.Context) (int, error) {
	var n int
	err := db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM Observations").Scan(&n)
	return n, err
}

// Reset drops every table and recreates them empty.
func (db *DB) Reset(ctx context.Context) error {
	if err := db.closeStatements(); err != nil {
		return err
	}
	for _, t := range tables {
		if _, err := db.sql.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop %s: %v", t, err)
		}
	}
	if err := db.createTables(); err != nil {
		return err
	}
	return db.prepareStatements()
}

func (db *DB) closeStatements() error {
	for _, stmt := range []*sql.Stmt{db.insertBatch, db.insertCase, db.insertRevision, db.insertObservation, db.observationExists} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connections, releasing any open resources.
func (db *DB) Close() error {
	if err := db.closeStatements(); err != nil {
		return err
	}
	return db.sql.Close()
}
