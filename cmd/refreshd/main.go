package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rexologue/pyindex-operator/internal/catalog"
	"github.com/rexologue/pyindex-operator/internal/config"
	"github.com/rexologue/pyindex-operator/internal/gitx"
	"github.com/rexologue/pyindex-operator/internal/logging"
	"github.com/rexologue/pyindex-operator/internal/manifest"
	"github.com/rexologue/pyindex-operator/internal/pipeline"
	"github.com/rexologue/pyindex-operator/internal/sched"
	"github.com/rexologue/pyindex-operator/internal/scrape"
	"github.com/rexologue/pyindex-operator/internal/web"
)

func main() {
	// Optional .env for PYINDEX_CONFIG_FILE and git credentials helpers.
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath(), "Path to config file (JSON or YAML)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	addr := flag.String("addr", ":8080", "HTTP bind address")
	runOnStart := flag.Bool("run-on-start", false, "Run one refresh immediately on startup")
	flag.Parse()

	logger := logging.BuildLogger(*logLevel, *logFormat)

	if err := run(logger, *configPath, *addr, *runOnStart); err != nil {
		logger.Error("refreshd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string, addr string, runOnStart bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := gitx.Discover(cfg.RepoDir)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.CatalogFile())
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

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
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := sched.New(logger)
	if err := scheduler.Add(ctx, refreshJob{runner: runner, schedule: cfg.Schedule}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if runOnStart {
		go func() {
			if _, err := runner.Run(ctx, "startup"); err != nil {
				logger.Warn("startup refresh failed", "error", err)
			}
		}()
	}

	server := web.NewServer(runner, cat, cfg.IndexPath(), logger)
	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe(addr) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errc:
		return err
	}
}

// refreshJob adapts the pipeline runner to the scheduler.
type refreshJob struct {
	runner   *pipeline.Runner
	schedule string
}

func (j refreshJob) Name() string     { return "index-refresh" }
func (j refreshJob) Schedule() string { return j.schedule }

func (j refreshJob) Run(ctx context.Context) error {
	_, err := j.runner.Run(ctx, "schedule")
	return err
}
