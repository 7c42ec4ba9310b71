// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbtest opens throwaway SQL stores for tests.
//
// By default every store is a private in-memory SQLite database. With
// -dbtest.driver=mysql or -dbtest.driver=postgres, each test instead
// gets a freshly created database on a server, which is dropped when
// the test ends. The server is named by $BENCHTRACK_TEST_MYSQL (a
// go-sql-driver DSN ending in "/", such as "root@tcp(localhost)/"),
// -dbtest.cloudsql (a Cloud SQL instance), or $BENCHTRACK_TEST_POSTGRES
// (a postgres:// URL). Tests are skipped if no server is named.
package dbtest

import (
	"context"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	_ "github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/dialers/mysql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"golang.org/x/perf/benchtrack/storage/db"
	_ "golang.org/x/perf/benchtrack/storage/db/sqlite3"
)

var (
	driver   = flag.String("dbtest.driver", "sqlite3", "SQL store tests use `driver`: sqlite3, mysql or postgres")
	cloudsql = flag.String("dbtest.cloudsql", "", "run mysql tests on the Cloud SQL `instance`")
)

// A server makes scratch databases.
type server struct {
	driver string
	// admin connects without selecting a database.
	admin string
	// dsn selects database name.
	dsn   func(name string) (string, error)
	quote func(name string) string
}

func serverFor(t *testing.T, driver string) *server {
	switch driver {
	case "mysql":
		admin := os.Getenv("BENCHTRACK_TEST_MYSQL")
		if *cloudsql != "" {
			admin = fmt.Sprintf("root:@cloudsql(%s)/", *cloudsql)
		}
		if admin == "" {
			t.Skip("no mysql server: set $BENCHTRACK_TEST_MYSQL or -dbtest.cloudsql")
		}
		if !strings.HasSuffix(admin, "/") {
			t.Fatalf("mysql DSN %q does not end in /", admin)
		}
		return &server{
			driver: driver,
			admin:  admin,
			dsn:    func(name string) (string, error) { return admin + name, nil },
			quote:  func(name string) string { return "`" + name + "`" },
		}
	case "postgres":
		admin := os.Getenv("BENCHTRACK_TEST_POSTGRES")
		if admin == "" {
			t.Skip("no postgres server: set $BENCHTRACK_TEST_POSTGRES")
		}
		return &server{
			driver: driver,
			admin:  admin,
			dsn: func(name string) (string, error) {
				u, err := url.Parse(admin)
				if err != nil {
					return "", err
				}
				u.Path = "/" + name
				return u.String(), nil
			},
			quote: func(name string) string { return `"` + name + `"` },
		}
	}
	t.Fatalf("unknown -dbtest.driver %q", driver)
	return nil
}

// create makes an empty database and registers its removal with t.
func (s *server) create(t *testing.T) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	name := fmt.Sprintf("benchtrack_test_%x", buf)

	admin, err := sql.Open(s.driver, s.admin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.Exec("CREATE DATABASE " + s.quote(name)); err != nil {
		admin.Close()
		t.Fatal(err)
	}
	t.Logf("using %s database %q", s.driver, name)
	t.Cleanup(func() {
		if _, err := admin.Exec("DROP DATABASE " + s.quote(name)); err != nil {
			t.Error(err)
		}
		admin.Close()
	})

	dsn, err := s.dsn(name)
	if err != nil {
		t.Fatal(err)
	}
	return dsn
}

// NewDB returns an empty store that is closed, and for server drivers
// dropped, when the test finishes.
func NewDB(t *testing.T) *db.DB {
	t.Helper()
	driverName, dsn := "sqlite3", ":memory:"
	if *driver != "sqlite3" {
		s := serverFor(t, *driver)
		driverName, dsn = s.driver, s.create(t)
	}
	d, err := db.OpenSQL(driverName, dsn)
	if err != nil {
		t.Fatalf("open %s store: %v", driverName, err)
	}
	// Registered after create's cleanup, so it runs first.
	t.Cleanup(func() { d.Close() })

	n, err := d.CountObservations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("new %s store has %d observations, want 0", driverName, n)
	}
	return d
}
