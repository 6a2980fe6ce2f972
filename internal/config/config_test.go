package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSONWithDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"repo_dir": "/srv/index-repo"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ManifestURL != DefaultManifestURL {
		t.Fatalf("unexpected manifest url %q", cfg.ManifestURL)
	}
	if cfg.Arch != DefaultArch {
		t.Fatalf("unexpected arch %q", cfg.Arch)
	}
	if cfg.CommitMessage != "chore(index): refresh via HTML parser" {
		t.Fatalf("unexpected commit message %q", cfg.CommitMessage)
	}
	if cfg.Schedule != "0 3 * * *" {
		t.Fatalf("unexpected schedule %q", cfg.Schedule)
	}
	if cfg.IndexPath() != filepath.Join("/srv/index-repo", "index.json") {
		t.Fatalf("unexpected index path %q", cfg.IndexPath())
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
repo_dir: /srv/index-repo
arch: aarch64-apple-darwin
index_file: data/index.json
cache_ttl: 1h
push: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Arch != "aarch64-apple-darwin" {
		t.Fatalf("unexpected arch %q", cfg.Arch)
	}
	if !cfg.Push {
		t.Fatal("expected push to be set")
	}
	if cfg.CacheDuration() != time.Hour {
		t.Fatalf("unexpected cache ttl %v", cfg.CacheDuration())
	}
	want := filepath.Join("/srv/index-repo", "data", "index.json")
	if cfg.IndexPath() != want {
		t.Fatalf("unexpected index path %q, want %q", cfg.IndexPath(), want)
	}
}

func TestLoad_MissingRepoDir(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_RejectsEscapingIndexFile(t *testing.T) {
	for _, indexFile := range []string{"/etc/passwd", "../outside.json"} {
		path := writeConfig(t, "config.json", `{"repo_dir": "/srv/r", "index_file": "`+indexFile+`"}`)
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for index_file %q", indexFile)
		}
	}
}

func TestLoad_BadCacheTTL(t *testing.T) {
	path := writeConfig(t, "config.json", `{"repo_dir": "/srv/r", "cache_ttl": "soon"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid cache_ttl")
	}
}

func TestDefaultPath_EnvOverride(t *testing.T) {
	t.Setenv("PYINDEX_CONFIG_FILE", "/tmp/other.yaml")
	if got := DefaultPath(); got != "/tmp/other.yaml" {
		t.Fatalf("unexpected default path %q", got)
	}
}

func TestCatalogFile_DefaultsNextToRepo(t *testing.T) {
	cfg := &Config{RepoDir: "/srv/checkouts/index-repo"}
	want := filepath.Join("/srv/checkouts", "pyindex-catalog.db")
	if got := cfg.CatalogFile(); got != want {
		t.Fatalf("unexpected catalog path %q, want %q", got, want)
	}
}
