// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0666))
	return path
}

// chdir changes to a new empty directory for the rest of the test.
func chdir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	chdir(t)
	cfg, err := Load(viper.New(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Store)
	assert.Equal(t, "benchtrack.db", cfg.DSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "replace", cfg.Merge)
	assert.Equal(t, 1, cfg.Parallel)
	assert.Equal(t, "https://perfdata.golang.org", cfg.Perfdata.Server)
}

func TestFile(t *testing.T) {
	path := writeFile(t, "bt.yaml", `
store: badger
dsn: /tmp/bt
timeout: 30s
iterations: 9
influx:
  url: http://localhost:8086
  org: perf
  bucket: bench
`)
	cfg, err := Load(viper.New(), path, "")
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Store)
	assert.Equal(t, "/tmp/bt", cfg.DSN)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 9, cfg.Iterations)
	assert.Equal(t, Influx{URL: "http://localhost:8086", Org: "perf", Bucket: "bench"}, cfg.Influx)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "bt.yaml", "store: badger\ninflux:\n  org: perf\n")
	t.Setenv("BENCHTRACK_STORE", "memory")
	t.Setenv("BENCHTRACK_INFLUX_ORG", "other")
	cfg, err := Load(viper.New(), path, "")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "other", cfg.Influx.Org)
}

func TestDotenv(t *testing.T) {
	const key = "BENCHTRACK_GCS_PREFIX"
	t.Cleanup(func() { os.Unsetenv(key) })
	chdir(t)
	env := writeFile(t, ".env", key+"=reports/\n")
	cfg, err := Load(viper.New(), "", env)
	require.NoError(t, err)
	assert.Equal(t, "reports/", cfg.GCS.Prefix)

	// A missing .env file is fine.
	_, err = Load(viper.New(), "", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "none.yaml"), "")
	assert.Error(t, err)
}

func TestInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"store":    "store: oracle\n",
		"level":    "log_level: loud\n",
		"merge":    "merge: average\n",
		"parallel": "parallel: -1\n",
		"influx":   "influx:\n  url: http://localhost:8086\n",
		"url":      "perfdata:\n  server: not a url\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "bt.yaml", content)
			_, err := Load(viper.New(), path, "")
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}
