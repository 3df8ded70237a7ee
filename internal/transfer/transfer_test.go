// transfer_test.go covers the upload size gate and the HTTP side-channel
// round trips.
package transfer

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/dtail/internal/wsstream"
)

var testTarget = wsstream.Target{
	Organization: "acme",
	Cluster:      "prod",
	Namespace:    "payments",
	Pod:          "checkout-1",
	Container:    "app",
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestUploadRejectsOversizeFileBeforeAnyRequest(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
	}))
	defer srv.Close()

	// A sparse file over the limit; no data blocks are actually allocated.
	path := filepath.Join(t.TempDir(), "huge.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create sparse file: %v", err)
	}
	if err := f.Truncate(MaxUploadBytes + 1); err != nil {
		f.Close()
		t.Skipf("filesystem does not support sparse files: %v", err)
	}
	f.Close()

	c := New(srv.URL, "", logr.Discard())
	err = c.Upload(t.Context(), testTarget, path, nil)
	if err == nil {
		t.Fatalf("expected oversize rejection")
	}
	if !strings.Contains(err.Error(), "10 GiB") {
		t.Fatalf("error should name the limit, got %q", err)
	}
	if got := atomic.LoadInt64(&requests); got != 0 {
		t.Fatalf("oversize file must be rejected before any network call, saw %d requests", got)
	}
}

func TestUploadStreamsMultipartWithAuth(t *testing.T) {
	received := make(chan []byte, 1)
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		received <- body
	}))
	defer srv.Close()

	path := writeTempFile(t, "notes.txt", "payload bytes")
	c := New(srv.URL, "secret-token", logr.Discard())

	var final Progress
	err := c.Upload(t.Context(), testTarget, path, func(p Progress) { final = p })
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if got := <-received; string(got) != "payload bytes" {
		t.Fatalf("server received %q", got)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	want := "/api/v1/clusters/prod/namespaces/payments/pods/checkout-1/containers/app/upload_file"
	if gotPath != want {
		t.Fatalf("unexpected path: want %q got %q", want, gotPath)
	}
	if !strings.Contains(gotQuery, "organization_name=acme") {
		t.Fatalf("organization missing from query %q", gotQuery)
	}
	if !final.Done || final.Sent != int64(len("payload bytes")) {
		t.Fatalf("final progress not reported: %+v", final)
	}
}

func TestUploadSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "container is not running", http.StatusConflict)
	}))
	defer srv.Close()

	path := writeTempFile(t, "notes.txt", "x")
	c := New(srv.URL, "", logr.Discard())
	err := c.Upload(t.Context(), testTarget, path, nil)
	if err == nil {
		t.Fatalf("expected upload error")
	}
	if !strings.Contains(err.Error(), "container is not running") {
		t.Fatalf("server message missing from %q", err)
	}
}

func TestDownloadWritesBodyAndPathQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, "remote file content")
	}))
	defer srv.Close()

	c := New(srv.URL, "", logr.Discard())
	var out bytes.Buffer
	n, err := c.Download(t.Context(), testTarget, "/var/log/app.log", &out)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if out.String() != "remote file content" {
		t.Fatalf("unexpected body %q", out.String())
	}
	if n != int64(out.Len()) {
		t.Fatalf("byte count mismatch: reported %d wrote %d", n, out.Len())
	}
	if !strings.Contains(gotQuery, "path=%2Fvar%2Flog%2Fapp.log") {
		t.Fatalf("remote path missing from query %q", gotQuery)
	}
}

func TestDownloadSurfacesHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", logr.Discard())
	if _, err := c.Download(t.Context(), testTarget, "/missing", io.Discard); err == nil {
		t.Fatalf("expected download error")
	}
}

func TestTransferRequiresContainer(t *testing.T) {
	c := New("https://api.example.com", "", logr.Discard())
	target := testTarget
	target.Container = ""
	if _, err := c.Download(t.Context(), target, "/x", io.Discard); err == nil {
		t.Fatalf("expected error for missing container")
	}
}
