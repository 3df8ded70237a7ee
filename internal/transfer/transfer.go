// Package transfer moves files in and out of pod containers over the
// platform's HTTP API. This is a side-channel keyed by the same target
// identity as the duplex streams; its failures surface as notices and never
// touch stream state.
package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/example/dtail/internal/wsstream"
)

// MaxUploadBytes is the client-side upload limit: 10 GiB. A file exactly at
// the limit is accepted; one byte over is rejected before any network call.
const MaxUploadBytes int64 = 10 << 30

// Progress reports upload state for one filename.
type Progress struct {
	Filename string
	Sent     int64
	Total    int64
	Done     bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests, proxies).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// Client performs uploads and downloads against one API endpoint.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      logr.Logger
}

// New returns a transfer client for the given endpoint. token, when set, is
// sent as a bearer credential.
func New(endpoint, token string, log logr.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     http.DefaultClient,
		log:      log.WithName("transfer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload streams the local file into the target container. onProgress, when
// non-nil, observes byte counts during the transfer and a final Done report.
func (c *Client) Upload(ctx context.Context, target wsstream.Target, localPath string, onProgress func(Progress)) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	filename := filepath.Base(localPath)
	if info.Size() > MaxUploadBytes {
		return fmt.Errorf("%s is %d bytes, over the 10 GiB upload limit", filename, info.Size())
	}

	endpoint, err := c.containerURL(target, "upload_file", nil)
	if err != nil {
		return err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		reader := &progressReader{
			r: file,
			report: func(sent int64) {
				if onProgress != nil {
					onProgress(Progress{Filename: filename, Sent: sent, Total: info.Size()})
				}
			},
		}
		if _, err := io.Copy(part, reader); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload %s: %s", filename, responseError(resp))
	}
	if onProgress != nil {
		onProgress(Progress{Filename: filename, Sent: info.Size(), Total: info.Size(), Done: true})
	}
	c.log.V(1).Info("upload complete", "file", filename, "bytes", info.Size())
	return nil
}

// Download streams the remote path from the target container into w.
func (c *Client) Download(ctx context.Context, target wsstream.Target, remotePath string, w io.Writer) (int64, error) {
	endpoint, err := c.containerURL(target, "download_file", url.Values{"path": []string{remotePath}})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", remotePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: %s", remotePath, responseError(resp))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", remotePath, err)
	}
	c.log.V(1).Info("download complete", "path", remotePath, "bytes", n)
	return n, nil
}

func (c *Client) containerURL(target wsstream.Target, action string, extra url.Values) (string, error) {
	if err := target.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(target.Container) == "" {
		return "", fmt.Errorf("target container must be specified")
	}
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", c.endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("endpoint %q: unsupported scheme %q", c.endpoint, base.Scheme)
	}
	base.Path += "/api/v1/clusters/" + url.PathEscape(target.Cluster) +
		"/namespaces/" + url.PathEscape(target.Namespace) +
		"/pods/" + url.PathEscape(target.Pod) +
		"/containers/" + url.PathEscape(target.Container) + "/" + action
	q := url.Values{}
	if target.Organization != "" {
		q.Set("organization_name", target.Organization)
	}
	for key, vals := range extra {
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, msg)
}

type progressReader struct {
	r      io.Reader
	sent   int64
	report func(sent int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		if p.report != nil {
			p.report(p.sent)
		}
	}
	return n, err
}
