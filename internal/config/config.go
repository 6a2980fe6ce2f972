package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/pyindex/config.json"

const (
	DefaultManifestURL = "https://raw.githubusercontent.com/astral-sh/python-build-standalone/main/manifest.json.gz"
	DefaultReleasesURL = "https://github.com/astral-sh/python-build-standalone/releases"
	DefaultArch        = "x86_64-unknown-linux-gnu"
	DefaultFlavor      = "install_only"
	DefaultMessage     = "chore(index): refresh via HTML parser"
	DefaultSchedule    = "0 3 * * *"
	DefaultCacheTTL    = 12 * time.Hour
)

// Config describes one refresh deployment: where the upstream manifest
// lives, which builds to index, and where the resulting index.json is
// committed.
type Config struct {
	ManifestURL string `json:"manifest_url" yaml:"manifest_url"`
	ReleasesURL string `json:"releases_url" yaml:"releases_url"`
	Arch        string `json:"arch" yaml:"arch"`
	Flavor      string `json:"flavor" yaml:"flavor"`

	RepoDir       string `json:"repo_dir" yaml:"repo_dir"`
	IndexFile     string `json:"index_file" yaml:"index_file"`
	Branch        string `json:"branch" yaml:"branch"`
	CommitMessage string `json:"commit_message" yaml:"commit_message"`
	Push          bool   `json:"push" yaml:"push"`

	Schedule    string `json:"schedule" yaml:"schedule"`
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`

	InstallHome string `json:"install_home" yaml:"install_home"`
	CacheTTL    string `json:"cache_ttl" yaml:"cache_ttl"`
}

func DefaultPath() string {
	if path := os.Getenv("PYINDEX_CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigPath
}

// Load reads a config file, decoding JSON or YAML by extension, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ManifestURL == "" {
		c.ManifestURL = DefaultManifestURL
	}
	if c.ReleasesURL == "" {
		c.ReleasesURL = DefaultReleasesURL
	}
	if c.Arch == "" {
		c.Arch = DefaultArch
	}
	if c.Flavor == "" {
		c.Flavor = DefaultFlavor
	}
	if c.IndexFile == "" {
		c.IndexFile = "index.json"
	}
	if c.CommitMessage == "" {
		c.CommitMessage = DefaultMessage
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.InstallHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.InstallHome = filepath.Join(home, ".pyindex")
		}
	}
}

func (c *Config) Validate() error {
	if c.RepoDir == "" {
		return errors.New("config repo_dir is required")
	}
	if filepath.IsAbs(c.IndexFile) {
		return errors.New("config index_file must be relative to repo_dir")
	}
	if strings.Contains(c.IndexFile, "..") {
		return errors.New("config index_file must stay inside repo_dir")
	}
	if c.CacheTTL != "" {
		if _, err := time.ParseDuration(c.CacheTTL); err != nil {
			return fmt.Errorf("config cache_ttl: %w", err)
		}
	}
	return nil
}

// IndexPath returns the absolute path of the index file inside the repo.
func (c *Config) IndexPath() string {
	return filepath.Join(c.RepoDir, filepath.FromSlash(c.IndexFile))
}

// CatalogFile returns the sqlite catalog location, defaulting to a file
// next to the repo so it is never committed with the index.
func (c *Config) CatalogFile() string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}
	return filepath.Join(filepath.Dir(c.RepoDir), "pyindex-catalog.db")
}

// CacheDuration returns the parsed cache TTL for the consumer CLI.
func (c *Config) CacheDuration() time.Duration {
	if c.CacheTTL == "" {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return DefaultCacheTTL
	}
	return d
}
