// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultServer is the public perfdata server.
const DefaultServer = "https://perfdata.golang.org"

// UploadStatus is the response of a perfdata server to an upload.
type UploadStatus struct {
	// UploadID is the upload ID assigned to the upload.
	UploadID string `json:"uploadid"`
	// FileIDs is the list of file IDs assigned to the files in the upload.
	FileIDs []string `json:"fileids"`
	// ViewURL is a server-supplied URL to view the results.
	ViewURL string `json:"viewurl"`
}

// TokenSource returns a static token source for token, or the Google
// application default credentials if token is empty.
func TokenSource(ctx context.Context, token string) (oauth2.TokenSource, error) {
	if token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
	}
	return google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/userinfo.email")
}

// A Perfdata uploads benchmark files to a perfdata server.
type Perfdata struct {
	Server string
	// Client is used for requests. It is typically an oauth2
	// client, see oauth2.NewClient.
	Client *http.Client
	// Header, if non-empty, is inserted at the beginning of each
	// uploaded file.
	Header []byte
}

// writeOneFile reads name and writes it to mpw. Files ending in .zst
// are decompressed, since servers expect plain benchmark text.
func (p *Perfdata) writeOneFile(mpw *multipart.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	base := filepath.Base(name)
	if strings.HasSuffix(name, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
		base = strings.TrimSuffix(base, ".zst")
	}

	w, err := mpw.CreateFormFile("file", base)
	if err != nil {
		return err
	}
	if len(p.Header) > 0 {
		if _, err := w.Write(p.Header); err != nil {
			return err
		}
	}
	_, err = io.Copy(w, r)
	return err
}

// Upload uploads files as a single upload.
func (p *Perfdata) Upload(ctx context.Context, files ...string) (*UploadStatus, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	server := p.Server
	if server == "" {
		server = DefaultServer
	}
	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	pr, pw := io.Pipe()
	mpw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mpw.Close()
		for _, name := range files {
			if err := p.writeOneFile(mpw, name); err != nil {
				// The abort field makes the server reject the
				// upload.
				mpw.WriteField("abort", "1")
				pw.CloseWithError(err)
				return
			}
		}
		mpw.WriteField("commit", "1")
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("upload failed: %s\n%s", resp.Status, strings.TrimSpace(string(body)))
	}
	status := new(UploadStatus)
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("cannot parse upload response: %w", err)
	}
	return status, nil
}
