// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/perf/benchtrack/history"
)

func strof(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// WriteCSV writes the relative history of one category to w: a header
// row, then one row per revision with one column per case and a final
// column for the category mean. Gaps are empty cells.
func WriteCSV(w io.Writer, r *Report, v history.CategoryView) error {
	cw := csv.NewWriter(w)
	header := []string{"revision", "label"}
	for _, s := range v.Cases {
		header = append(header, s.Case)
	}
	header = append(header, "mean")
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, rev := range v.Revisions {
		row = row[:0]
		row = append(row, strconv.Itoa(rev), r.Label(rev))
		for _, rs := range v.Relative {
			if val, ok := rs.At(rev); ok {
				row = append(row, strof(val))
			} else {
				row = append(row, "")
			}
		}
		if val, ok := v.RelativeMean.At(rev); ok {
			row = append(row, strof(val))
		} else {
			row = append(row, "")
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes one CSV file per category into dir and returns their
// paths.
func SaveCSV(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	var paths []string
	for _, v := range r.Views {
		path := filepath.Join(dir, fileName(v.Category)+".csv")
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		err = WriteCSV(f, r, v)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
