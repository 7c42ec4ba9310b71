// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"io"

	"github.com/google/safehtml/template"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>benchmark history</title>
<style>
td, th { padding: 2px 8px; text-align: right; }
td.gap { color: #999; }
td.worse { color: #a00; }
td.better { color: #070; }
</style>
</head>
<body>
{{- range .Categories}}
<h2>{{.Name}}</h2>
{{- if .Chart}}
<img src="{{.Chart}}" alt="{{.Name}}">
{{- end}}
<table>
<tr><th>revision<th>label{{range .Cases}}<th>{{.}}{{end}}<th>mean
{{- range .Rows}}
<tr><td>{{.Revision}}<td>{{.Label}}{{range .Cells}}{{if .Gap}}<td class="gap">-{{else if .Worse}}<td class="worse">{{.Text}}{{else if .Better}}<td class="better">{{.Text}}{{else}}<td>{{.Text}}{{end}}{{end}}
{{- end}}
</table>
{{- end}}
{{- if .Skips}}
<h2>skipped</h2>
<ul>
{{- range .Skips}}
<li>{{.}}
{{- end}}
</ul>
{{- end}}
{{- if .Failures}}
<h2>context failures</h2>
<ul>
{{- range .Failures}}
<li>{{.}}
{{- end}}
</ul>
{{- end}}
</body>
</html>
`))

type htmlCell struct {
	Gap           bool
	Worse, Better bool
	Text          string
}

type htmlRow struct {
	Revision int
	Label    string
	Cells    []htmlCell
}

type htmlCategory struct {
	Name  string
	Chart string
	Cases []string
	Rows  []htmlRow
}

type htmlPage struct {
	Categories []htmlCategory
	Skips      []string
	Failures   []string
}

// Relative values this far from 1 are highlighted.
const htmlThreshold = 0.05

func ratioCell(v float64, ok bool) htmlCell {
	if !ok {
		return htmlCell{Gap: true}
	}
	c := htmlCell{Text: formatRatio(v)}
	c.Worse = v > 1+htmlThreshold
	c.Better = v < 1-htmlThreshold
	return c
}

// WriteHTML writes r to w as a standalone HTML page of relative
// values. charts maps category names to the URL of their chart, if
// any.
func WriteHTML(w io.Writer, r *Report, charts map[string]string) error {
	var page htmlPage
	for _, v := range r.Views {
		cat := htmlCategory{Name: v.Category, Chart: charts[v.Category]}
		for _, s := range v.Cases {
			cat.Cases = append(cat.Cases, s.Case)
		}
		for _, rev := range v.Revisions {
			row := htmlRow{Revision: rev, Label: r.Label(rev)}
			for _, rs := range v.Relative {
				row.Cells = append(row.Cells, ratioCell(rs.At(rev)))
			}
			row.Cells = append(row.Cells, ratioCell(v.RelativeMean.At(rev)))
			cat.Rows = append(cat.Rows, row)
		}
		page.Categories = append(page.Categories, cat)
	}
	for _, s := range r.Skips {
		page.Skips = append(page.Skips, s.String())
	}
	for _, f := range r.ContextFailures {
		page.Failures = append(page.Failures, f.String())
	}
	return htmlTemplate.Execute(w, page)
}
