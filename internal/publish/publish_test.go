// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0666))
	return path
}

// perfdataServer serves /upload like a perfdata server, recording the
// uploaded files.
func perfdataServer(t *testing.T) (*httptest.Server, map[string]string, *string) {
	files := make(map[string]string)
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		var ids []string
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			data, _ := io.ReadAll(p)
			switch p.FormName() {
			case "abort":
				http.Error(w, "aborted", 500)
				return
			case "file":
				files[p.FileName()] = string(data)
				ids = append(ids, "1/"+p.FileName())
			}
		}
		json.NewEncoder(w).Encode(UploadStatus{UploadID: "1", FileIDs: ids, ViewURL: "http://view/1"})
	}))
	t.Cleanup(srv.Close)
	return srv, files, &auth
}

func TestPerfdataUpload(t *testing.T) {
	srv, files, auth := perfdataServer(t)
	dir := t.TempDir()
	plain := writeFile(t, dir, "a.txt", []byte("BenchmarkX 1 5 ns/op\n"))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := writeFile(t, dir, "b.txt.zst", enc.EncodeAll([]byte("BenchmarkY 1 7 ns/op\n"), nil))

	ctx := context.Background()
	ts, err := TokenSource(ctx, "secret")
	require.NoError(t, err)
	p := &Perfdata{Server: srv.URL, Client: oauth2.NewClient(ctx, ts), Header: []byte("goos: linux\n\n")}
	status, err := p.Upload(ctx, plain, compressed)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", *auth)
	assert.Equal(t, "http://view/1", status.ViewURL)
	assert.Equal(t, []string{"1/a.txt", "1/b.txt"}, status.FileIDs)
	assert.Equal(t, map[string]string{
		"a.txt": "goos: linux\n\nBenchmarkX 1 5 ns/op\n",
		"b.txt": "goos: linux\n\nBenchmarkY 1 7 ns/op\n",
	}, files)
}

func TestPerfdataErrors(t *testing.T) {
	srv, _, _ := perfdataServer(t)
	p := &Perfdata{Server: srv.URL}
	ctx := context.Background()

	_, err := p.Upload(ctx)
	assert.Error(t, err, "no files")

	_, err = p.Upload(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err, "missing file")

	bad := &Perfdata{Server: srv.URL + "/nowhere"}
	_, err = bad.Upload(ctx, writeFile(t, t.TempDir(), "a.txt", []byte("x\n")))
	assert.ErrorContains(t, err, "404")
}

func TestBucket(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = make(map[string]string)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/reports/o") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		if name == "" {
			// Multipart uploads carry the name in the metadata part.
			for _, line := range strings.Split(string(body), "\n") {
				var meta struct{ Name string }
				if json.Unmarshal([]byte(strings.TrimSpace(line)), &meta) == nil && meta.Name != "" {
					name = meta.Name
					break
				}
			}
		}
		mu.Lock()
		objects[name] = string(body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"bucket": "reports", "name": name})
	}))
	defer srv.Close()

	ctx := context.Background()
	b, err := NewBucket(ctx, "reports", "nightly/",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer b.Close()

	dir := t.TempDir()
	writeFile(t, dir, "b.csv", []byte("revision,label\n"))
	writeFile(t, dir, "a.html", []byte("<html>chart</html>"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0777))

	urls, err := b.UploadDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gs://reports/nightly/a.html", "gs://reports/nightly/b.csv"}, urls)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, objects, "nightly/a.html")
	assert.Contains(t, objects["nightly/a.html"], "<html>chart</html>")
	assert.Contains(t, objects["nightly/b.csv"], "revision,label")
}

func TestNewBucketMissingName(t *testing.T) {
	_, err := NewBucket(context.Background(), "", "", option.WithoutAuthentication())
	assert.Error(t, err)
}
