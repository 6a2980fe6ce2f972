package manifest

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const userAgent = "pyindex-operator/0.3"

// Entry is one downloadable build advertised by the upstream manifest.
type Entry struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	SHA256      string `json:"sha256,omitempty"`
}

type document struct {
	Files []Entry `json:"files"`
}

// Fetcher downloads and decodes the upstream manifest.json.gz.
type Fetcher struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func New(url string) *Fetcher {
	return &Fetcher{
		URL:    url,
		Client: http.DefaultClient,
	}
}

// Fetch retrieves the manifest, retrying transient failures with a short
// linear backoff. The payload is gunzipped when the server marks it as
// gzip or the URL carries a .gz suffix.
func (f *Fetcher) Fetch(ctx context.Context) ([]Entry, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if f.Logger != nil {
				f.Logger.Warn("retrying manifest fetch", "url", f.URL, "attempt", attempt+1, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		entries, err := f.fetchOnce(ctx)
		if err == nil {
			if f.Logger != nil {
				f.Logger.Info("fetched manifest", "url", f.URL, "entries", len(entries))
			}
			return entries, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download manifest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download manifest: status %s", resp.Status)
	}

	body := io.ReadCloser(resp.Body)
	if resp.Header.Get("Content-Encoding") == "gzip" || strings.HasSuffix(f.URL, ".gz") {
		body, err = wrapGzipReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = body.Close() }()
	}

	var doc document
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return doc.Files, nil
}

func wrapGzipReader(r io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return &gzipReadCloser{ReadCloser: r, Reader: gz}, nil
}

type gzipReadCloser struct {
	io.ReadCloser
	Reader *gzip.Reader
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.Reader.Read(p)
}

func (g *gzipReadCloser) Close() error {
	_ = g.Reader.Close()
	return g.ReadCloser.Close()
}
