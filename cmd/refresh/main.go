package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rexologue/pyindex-operator/internal/catalog"
	"github.com/rexologue/pyindex-operator/internal/config"
	"github.com/rexologue/pyindex-operator/internal/gitx"
	"github.com/rexologue/pyindex-operator/internal/logging"
	"github.com/rexologue/pyindex-operator/internal/manifest"
	"github.com/rexologue/pyindex-operator/internal/pipeline"
	"github.com/rexologue/pyindex-operator/internal/scrape"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file (JSON or YAML)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	noCommit := flag.Bool("no-commit", false, "Write the index but skip the git commit step")
	noCatalog := flag.Bool("no-catalog", false, "Skip recording the run in the catalog")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel, *logFormat)

	if err := refresh(logger, *configPath, *noCommit, *noCatalog); err != nil {
		logger.Error("refresh failed", "error", err)
		os.Exit(1)
	}
}

func refresh(logger *slog.Logger, configPath string, noCommit bool, noCatalog bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := gitx.Discover(cfg.RepoDir)
	if err != nil {
		return err
	}

	var cat *catalog.Catalog
	if !noCatalog {
		cat, err = catalog.Open(cfg.CatalogFile())
		if err != nil {
			return err
		}
		defer func() { _ = cat.Close() }()
	}

	source := manifest.New(cfg.ManifestURL)
	source.Logger = logger
	fallback := scrape.New(cfg.ReleasesURL)
	fallback.Logger = logger

	runner := &pipeline.Runner{
		Source:        source,
		Fallback:      fallback,
		Repo:          repo,
		Catalog:       cat,
		Logger:        logger,
		Arch:          cfg.Arch,
		Flavor:        cfg.Flavor,
		IndexFile:     cfg.IndexFile,
		Branch:        cfg.Branch,
		CommitMessage: cfg.CommitMessage,
		Push:          cfg.Push,
		SkipCommit:    noCommit,
	}

	result, err := runner.Run(context.Background(), "cli")
	if err != nil {
		return err
	}

	logger.Info("refresh finished",
		"status", result.Status,
		"versions", result.Total,
		"added", len(result.Diff.Added),
		"changed", len(result.Diff.Changed),
		"removed", len(result.Diff.Removed),
	)
	return nil
}
