package gitx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo abstracts the git operations the refresh pipeline needs, so the
// pipeline can be tested against a fake.
type Repo interface {
	// Root returns the repository working tree root.
	Root() string

	// HasChanges reports whether the given path (relative to the root)
	// differs from HEAD or is untracked.
	HasChanges(ctx context.Context, relPath string) (bool, error)

	// Commit stages exactly relPath and records a commit with the given
	// message. Nothing else may end up in the commit.
	Commit(ctx context.Context, relPath string, message string) error

	// Push publishes the current branch; branch may be empty to push the
	// upstream default.
	Push(ctx context.Context, branch string) error

	// Head returns the current commit hash.
	Head(ctx context.Context) (string, error)
}

// CLIRepo implements Repo by shelling out to the git binary.
type CLIRepo struct {
	Dir string
}

// Discover walks up from dir looking for a .git entry and returns a
// CLIRepo rooted there. A .git regular file (worktrees, submodules) also
// counts.
func Discover(dir string) (*CLIRepo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve repo dir: %w", err)
	}

	current := abs
	for {
		info, err := os.Stat(filepath.Join(current, ".git"))
		if err == nil && (info.IsDir() || info.Mode().IsRegular()) {
			return &CLIRepo{Dir: current}, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil, fmt.Errorf("%s is not inside a git repository", abs)
		}
		current = parent
	}
}

func (r *CLIRepo) Root() string { return r.Dir }

func (r *CLIRepo) HasChanges(ctx context.Context, relPath string) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain", "--", relPath)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (r *CLIRepo) Commit(ctx context.Context, relPath string, message string) error {
	if _, err := r.run(ctx, "add", "--", relPath); err != nil {
		return err
	}
	// Scope the commit to the one path so concurrently dirtied files can
	// never ride along.
	if _, err := r.run(ctx, "commit", "-m", message, "--", relPath); err != nil {
		return err
	}
	return nil
}

func (r *CLIRepo) Push(ctx context.Context, branch string) error {
	args := []string{"push", "origin"}
	if branch != "" {
		args = append(args, "HEAD:"+branch)
	}
	_, err := r.run(ctx, args...)
	return err
}

func (r *CLIRepo) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *CLIRepo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// FakeRepo implements Repo with canned behavior for tests.
type FakeRepo struct {
	RootDir   string
	Dirty     bool
	HeadHash  string
	Commits   []string
	Pushes    []string
	CommitErr error
	PushErr   error
	StatusErr error
}

func (f *FakeRepo) Root() string { return f.RootDir }

func (f *FakeRepo) HasChanges(ctx context.Context, relPath string) (bool, error) {
	if f.StatusErr != nil {
		return false, f.StatusErr
	}
	return f.Dirty, nil
}

func (f *FakeRepo) Commit(ctx context.Context, relPath string, message string) error {
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Commits = append(f.Commits, message+" -- "+relPath)
	f.Dirty = false
	return nil
}

func (f *FakeRepo) Push(ctx context.Context, branch string) error {
	if f.PushErr != nil {
		return f.PushErr
	}
	f.Pushes = append(f.Pushes, branch)
	return nil
}

func (f *FakeRepo) Head(ctx context.Context) (string, error) {
	if f.HeadHash == "" {
		return "0000000000000000000000000000000000000000", nil
	}
	return f.HeadHash, nil
}
