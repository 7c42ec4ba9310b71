// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads benchtrack settings from a configuration file,
// the environment, a .env file and command-line flags.
//
// Settings are looked up, highest priority first, in flags bound to
// the viper instance, BENCHTRACK_* environment variables (variables in
// the .env file count as environment variables unless already set),
// the configuration file, and built-in defaults. Nested keys use an
// underscore in the environment, so influx.url is BENCHTRACK_INFLUX_URL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables.
const EnvPrefix = "BENCHTRACK"

// Config is the complete set of settings.
type Config struct {
	Store       string `mapstructure:"store" validate:"oneof=memory badger sqlite3 mysql postgres"`
	DSN         string `mapstructure:"dsn"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	MetricsFile string `mapstructure:"metrics_file"`

	// Repo and Pkg locate the suite program: Pkg is a package path
	// relative to the repository root at Repo.
	Repo string `mapstructure:"repo" validate:"required"`
	Pkg  string `mapstructure:"pkg"`

	Iterations int           `mapstructure:"iterations" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Parallel   int           `mapstructure:"parallel" validate:"gte=0"`
	Merge      string        `mapstructure:"merge" validate:"oneof=replace combine"`

	Influx   Influx   `mapstructure:"influx"`
	GCS      GCS      `mapstructure:"gcs"`
	Perfdata Perfdata `mapstructure:"perfdata"`
}

// Influx configures the InfluxDB report sink.
type Influx struct {
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org" validate:"required_with=URL"`
	Bucket string `mapstructure:"bucket" validate:"required_with=URL"`
}

// GCS configures publishing reports to Google Cloud Storage.
type GCS struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Perfdata configures uploads to a perfdata server.
type Perfdata struct {
	Server string `mapstructure:"server" validate:"omitempty,url"`
	// Token is an OAuth2 access token. If empty, the Google
	// application default credentials are used.
	Token string `mapstructure:"token"`
}

var defaults = map[string]interface{}{
	"store":           "sqlite3",
	"dsn":             "benchtrack.db",
	"log_level":       "info",
	"metrics_file":    "",
	"repo":            ".",
	"pkg":             "",
	"iterations":      0,
	"timeout":         time.Minute,
	"parallel":        1,
	"merge":           "replace",
	"influx.url":      "",
	"influx.token":    "",
	"influx.org":      "",
	"influx.bucket":   "",
	"gcs.bucket":      "",
	"gcs.prefix":      "",
	"perfdata.server": "https://perfdata.golang.org",
	"perfdata.token":  "",
}

// Setup prepares v to read settings. It is split out from Load so
// that flags can be bound to v in between.
func Setup(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the environment file dotenv, if it exists, and the
// configuration file into v and returns the validated settings. If
// file is empty, benchtrack.yaml in the current directory is used if
// present.
func Load(v *viper.Viper, file, dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}
	Setup(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("benchtrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the field constraints of cfg.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var msgs []string
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", fe.Namespace(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
