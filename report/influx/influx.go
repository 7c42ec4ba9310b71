// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package influx uploads benchmark history to an InfluxDB 2 bucket.
//
// Every (case, revision) summary becomes one point. The point's time
// is the revision's recorded time when known, so dashboards can plot
// by date, but the revision index is carried as both a tag and a field
// so series can still be ordered by observation number.
package influx

import (
	"context"
	"errors"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"golang.org/x/perf/benchtrack/observation"
	"golang.org/x/perf/benchtrack/report"
)

// DefaultMeasurement is the measurement points are written to when
// Options.Measurement is empty.
const DefaultMeasurement = "benchtrack"

// Options configures a Sink.
type Options struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// A Sink writes reports to InfluxDB.
type Sink struct {
	client      influxdb2.Client
	write       api.WriteAPIBlocking
	measurement string
}

// New returns a Sink for opts.
func New(opts Options) (*Sink, error) {
	switch {
	case opts.URL == "":
		return nil, errors.New("influx: missing URL")
	case opts.Org == "":
		return nil, errors.New("influx: missing org")
	case opts.Bucket == "":
		return nil, errors.New("influx: missing bucket")
	}
	if opts.Measurement == "" {
		opts.Measurement = DefaultMeasurement
	}
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &Sink{
		client:      client,
		write:       client.WriteAPIBlocking(opts.Org, opts.Bucket),
		measurement: opts.Measurement,
	}, nil
}

// Write uploads r and returns the number of points written.
func (s *Sink) Write(ctx context.Context, r *report.Report) (int, error) {
	points := Points(r, s.measurement)
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return 0, err
	}
	return len(points), nil
}

// Close releases the client's resources.
func (s *Sink) Close() {
	s.client.Close()
}

// Points converts r into InfluxDB points, one per case and revision
// with a successful attempt.
func Points(r *report.Report, measurement string) []*write.Point {
	revs := make(map[int]observation.Revision, len(r.Revisions))
	for _, rev := range r.Revisions {
		revs[rev.Index] = rev
	}
	var points []*write.Point
	for _, v := range r.Views {
		for i, s := range v.Cases {
			for _, e := range s.Entries {
				tags := map[string]string{
					"case":     s.Case,
					"category": v.Category,
					"revision": strconv.Itoa(e.Revision),
				}
				if l := revs[e.Revision].Label; l != "" {
					tags["label"] = l
				}
				fields := map[string]interface{}{
					"revision":   e.Revision,
					"mean":       e.Mean,
					"median":     e.Median,
					"min":        e.Min,
					"max":        e.Max,
					"successful": e.Successful,
					"total":      e.Total,
				}
				if rel, ok := v.Relative[i].At(e.Revision); ok {
					fields["relative"] = rel
				}
				points = append(points, influxdb2.NewPoint(measurement, tags, fields, pointTime(revs[e.Revision], e.Revision)))
			}
		}
	}
	return points
}

// pointTime returns the timestamp for revision index rev. Revisions
// without a recorded time are spread one second apart from the epoch
// so that they keep their order.
func pointTime(rev observation.Revision, index int) time.Time {
	if !rev.Recorded.IsZero() {
		return rev.Recorded
	}
	return time.Unix(int64(index), 0).UTC()
}
