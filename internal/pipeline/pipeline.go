package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rexologue/pyindex-operator/internal/catalog"
	"github.com/rexologue/pyindex-operator/internal/gitx"
	"github.com/rexologue/pyindex-operator/internal/index"
	"github.com/rexologue/pyindex-operator/internal/manifest"
)

// Source produces build entries: the manifest fetcher in the normal
// case, the releases-page scraper as fallback.
type Source interface {
	Fetch(ctx context.Context) ([]manifest.Entry, error)
}

// Runner executes one refresh: fetch entries, build the index, and when
// the file content changed, persist it as a single scoped commit. The
// steps are strictly sequential and any failure aborts before the
// commit step, so a failed run never moves the repository.
type Runner struct {
	Source   Source
	Fallback Source
	Repo     gitx.Repo
	Catalog  *catalog.Catalog
	Logger   *slog.Logger

	Arch          string
	Flavor        string
	IndexFile     string
	Branch        string
	CommitMessage string
	Push          bool
	SkipCommit    bool

	mu      sync.Mutex
	running bool
	last    *Result
}

// Result summarizes a finished run.
type Result struct {
	RunID      string     `json:"run_id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Diff       index.Diff `json:"diff"`
	Commit     string     `json:"commit,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ErrBusy is returned when a refresh is requested while one is already
// in flight.
var ErrBusy = errors.New("refresh already running")

// Status is the daemon-facing snapshot.
type Status struct {
	Running bool    `json:"running"`
	Last    *Result `json:"last,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Running: r.running, Last: r.last}
}

// Run performs one refresh. Concurrent calls are rejected with ErrBusy
// so a manual trigger can never race a scheduled run.
func (r *Runner) Run(ctx context.Context, trigger string) (Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return Result{}, ErrBusy
	}
	r.running = true
	r.mu.Unlock()

	result, err := r.runOnce(ctx, trigger)

	r.mu.Lock()
	r.running = false
	r.last = &result
	r.mu.Unlock()

	r.record(ctx, result)
	return result, err
}

func (r *Runner) runOnce(ctx context.Context, trigger string) (Result, error) {
	result := Result{
		RunID:     catalog.NewRunID(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	fail := func(err error) (Result, error) {
		result.FinishedAt = time.Now().UTC()
		result.Status = catalog.StatusFailed
		result.Error = err.Error()
		if r.Logger != nil {
			r.Logger.Error("refresh failed", "run", result.RunID, "trigger", trigger, "error", err)
		}
		return result, err
	}

	if r.Source == nil || r.Repo == nil {
		return fail(errors.New("pipeline runner missing dependencies"))
	}

	entries, err := r.fetchEntries(ctx)
	if err != nil {
		return fail(fmt.Errorf("fetch build entries: %w", err))
	}

	current := index.Build(entries, r.Arch, r.Flavor)
	result.Total = len(current)
	if len(current) == 0 {
		return fail(fmt.Errorf("no builds matched arch %q flavor %q", r.Arch, r.Flavor))
	}

	indexPath := filepath.Join(r.Repo.Root(), filepath.FromSlash(r.IndexFile))
	previous, err := index.Load(indexPath)
	if err != nil {
		return fail(fmt.Errorf("load current index: %w", err))
	}

	result.Diff = index.Compare(previous, current)
	if current.Equal(previous) {
		result.FinishedAt = time.Now().UTC()
		result.Status = catalog.StatusUnchanged
		if r.Logger != nil {
			r.Logger.Info("index unchanged", "run", result.RunID, "versions", result.Total)
		}
		return result, nil
	}

	if err := current.Write(indexPath); err != nil {
		return fail(err)
	}

	changed := false
	if !r.SkipCommit {
		changed, err = r.Repo.HasChanges(ctx, r.IndexFile)
		if err != nil {
			return fail(fmt.Errorf("inspect working tree: %w", err))
		}
	}
	if changed {
		if err := r.Repo.Commit(ctx, r.IndexFile, r.CommitMessage); err != nil {
			return fail(fmt.Errorf("commit index: %w", err))
		}
		if r.Push {
			if err := r.Repo.Push(ctx, r.Branch); err != nil {
				return fail(fmt.Errorf("push index: %w", err))
			}
		}
		if head, err := r.Repo.Head(ctx); err == nil {
			result.Commit = head
		}
	}

	result.FinishedAt = time.Now().UTC()
	result.Status = catalog.StatusChanged
	if r.Logger != nil {
		r.Logger.Info("index refreshed",
			"run", result.RunID,
			"versions", result.Total,
			"added", len(result.Diff.Added),
			"changed", len(result.Diff.Changed),
			"removed", len(result.Diff.Removed),
			"commit", result.Commit,
		)
	}
	return result, nil
}

func (r *Runner) fetchEntries(ctx context.Context) ([]manifest.Entry, error) {
	entries, err := r.Source.Fetch(ctx)
	if err == nil {
		return entries, nil
	}
	if r.Fallback == nil {
		return nil, err
	}
	if r.Logger != nil {
		r.Logger.Warn("manifest fetch failed, falling back to releases page", "error", err)
	}
	entries, ferr := r.Fallback.Fetch(ctx)
	if ferr != nil {
		return nil, fmt.Errorf("%w (fallback: %v)", err, ferr)
	}
	return entries, nil
}

// record writes the run and observed versions to the catalog. Catalog
// errors are logged, not returned: history is advisory and must not turn
// a successful refresh into a failure.
func (r *Runner) record(ctx context.Context, result Result) {
	if r.Catalog == nil {
		return
	}

	run := catalog.Run{
		ID:         result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Trigger:    result.Trigger,
		Status:     result.Status,
		Total:      result.Total,
		Added:      len(result.Diff.Added),
		Changed:    len(result.Diff.Changed),
		Removed:    len(result.Diff.Removed),
		Error:      result.Error,
	}
	if err := r.Catalog.RecordRun(ctx, run); err != nil && r.Logger != nil {
		r.Logger.Warn("catalog run record failed", "run", result.RunID, "error", err)
	}

	if result.Status != catalog.StatusChanged && result.Status != catalog.StatusUnchanged {
		return
	}
	indexPath := filepath.Join(r.Repo.Root(), filepath.FromSlash(r.IndexFile))
	current, err := index.Load(indexPath)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("catalog version snapshot failed", "error", err)
		}
		return
	}
	versions := make([]catalog.Version, 0, len(current))
	for _, v := range current.Versions() {
		versions = append(versions, catalog.Version{Version: v, URL: current[v]})
	}
	if err := r.Catalog.RecordVersions(ctx, versions, result.FinishedAt); err != nil && r.Logger != nil {
		r.Logger.Warn("catalog version record failed", "error", err)
	}
}
