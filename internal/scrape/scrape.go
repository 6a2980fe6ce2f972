package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rexologue/pyindex-operator/internal/manifest"
)

const userAgent = "pyindex-operator/0.3"

// Scraper extracts build download links from the upstream releases page.
// It is the fallback source used when the manifest endpoint is down: the
// page lists the same release assets as anchor hrefs.
type Scraper struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func New(releasesURL string) *Scraper {
	return &Scraper{
		URL:    releasesURL,
		Client: http.DefaultClient,
	}
}

// Fetch downloads the releases page and returns every linked cpython
// asset as a manifest entry. Retries mirror the manifest fetcher.
func (s *Scraper) Fetch(ctx context.Context) ([]manifest.Entry, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if s.Logger != nil {
				s.Logger.Warn("retrying releases scrape", "url", s.URL, "attempt", attempt+1, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		entries, err := s.fetchOnce(ctx)
		if err == nil {
			if s.Logger != nil {
				s.Logger.Info("scraped releases page", "url", s.URL, "entries", len(entries))
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

func (s *Scraper) fetchOnce(ctx context.Context) ([]manifest.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build releases request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download releases page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download releases page: status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse releases page: %w", err)
	}

	base, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse releases url: %w", err)
	}

	var entries []manifest.Entry
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.Contains(href, "/releases/download/") {
			return
		}
		name := path.Base(href)
		// GitHub percent-encodes the + in build filenames.
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		if !strings.HasPrefix(name, "cpython-") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		entries = append(entries, manifest.Entry{
			Filename:    name,
			DownloadURL: abs,
		})
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("no release assets found at %s", s.URL)
	}
	return entries, nil
}
