package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rexologue/pyindex-operator/internal/index"
)

const userAgent = "pyindex-operator/0.3"

// Installer downloads standalone CPython builds listed in a published
// index.json and unpacks them under a local home directory, one
// directory per full version.
type Installer struct {
	IndexURL string
	Home     string
	CacheDir string
	CacheTTL time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

func New(indexURL string, home string) *Installer {
	cacheDir := ""
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "pyindex")
	}
	return &Installer{
		IndexURL: indexURL,
		Home:     home,
		CacheDir: cacheDir,
		CacheTTL: 12 * time.Hour,
		Client:   http.DefaultClient,
	}
}

func (i *Installer) cachePath() string {
	return filepath.Join(i.CacheDir, "index.json")
}

// LoadIndex returns the version index, using the on-disk cache when it
// is younger than the TTL and refreshing it from IndexURL otherwise.
func (i *Installer) LoadIndex(ctx context.Context) (index.Index, error) {
	if i.CacheDir != "" {
		if info, err := os.Stat(i.cachePath()); err == nil && time.Since(info.ModTime()) < i.CacheTTL {
			ix, err := index.Load(i.cachePath())
			if err == nil && len(ix) > 0 {
				return ix, nil
			}
		}
	}
	return i.RefreshIndex(ctx)
}

// RefreshIndex downloads the index unconditionally and rewrites the
// cache.
func (i *Installer) RefreshIndex(ctx context.Context) (index.Index, error) {
	if i.Logger != nil {
		i.Logger.Info("fetching version index", "url", i.IndexURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.IndexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download index: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download index: status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	if i.CacheDir != "" {
		if err := os.MkdirAll(i.CacheDir, 0o755); err == nil {
			_ = os.WriteFile(i.cachePath(), data, 0o644)
		}
	}

	tmp, err := os.CreateTemp("", "pyindex-*")
	if err != nil {
		return nil, fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp index: %w", err)
	}
	_ = tmp.Close()

	return index.Load(tmpPath)
}

// InvalidateCache drops the cached index so the next load refetches.
func (i *Installer) InvalidateCache() error {
	if i.CacheDir == "" {
		return nil
	}
	if err := os.Remove(i.cachePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index cache: %w", err)
	}
	return nil
}

// Ensure resolves version (X.Y or X.Y.Z), downloads the build when it
// is not installed yet, and returns the path of its python binary.
func (i *Installer) Ensure(ctx context.Context, version string) (string, error) {
	ix, err := i.LoadIndex(ctx)
	if err != nil {
		return "", err
	}

	resolved, err := ix.Resolve(version)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(i.Home, resolved)
	python := filepath.Join(dest, "bin", "python")
	if _, err := os.Stat(python); err == nil {
		return python, nil
	}

	url := ix[resolved]
	archive, err := i.download(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(archive) }()

	if i.Logger != nil {
		i.Logger.Info("extracting build", "version", resolved, "dest", dest)
	}
	if err := extractTarGz(archive, dest, "python"); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("extract %s: %w", resolved, err)
	}

	if _, err := os.Stat(python); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("build %s has no bin/python after extraction", resolved)
	}
	return python, nil
}

// download fetches a build tarball with the same bounded retry the
// refresh side uses, writing through a temp file.
func (i *Installer) download(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(i.Home, 0o755); err != nil {
		return "", fmt.Errorf("create install home: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if i.Logger != nil {
				i.Logger.Warn("retrying build download", "url", url, "attempt", attempt+1, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		path, err := i.downloadOnce(ctx, url)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", lastErr
		}
	}
	return "", lastErr
}

func (i *Installer) downloadOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := i.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download build: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download build: status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(i.Home, ".build-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close archive: %w", err)
	}
	return tmpPath, nil
}

// Build is one locally installed version.
type Build struct {
	Version string
	Python  string
}

// Installed lists the builds present under the install home, newest
// version first.
func (i *Installer) Installed() ([]Build, error) {
	entries, err := os.ReadDir(i.Home)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read install home: %w", err)
	}

	var builds []Build
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		python := filepath.Join(i.Home, entry.Name(), "bin", "python")
		if _, err := os.Stat(python); err != nil {
			continue
		}
		builds = append(builds, Build{Version: entry.Name(), Python: python})
	}
	sort.Slice(builds, func(a, b int) bool {
		return builds[a].Version > builds[b].Version
	})
	return builds, nil
}

// Use ensures the version and points the current poetry project at it.
func (i *Installer) Use(ctx context.Context, version string) (string, error) {
	python, err := i.Ensure(ctx, version)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "poetry", "env", "use", python)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("poetry env use: %w", err)
	}
	return python, nil
}
