package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rexologue/pyindex-operator/internal/catalog"
	"github.com/rexologue/pyindex-operator/internal/gitx"
	"github.com/rexologue/pyindex-operator/internal/index"
	"github.com/rexologue/pyindex-operator/internal/manifest"
)

const (
	testArch    = "x86_64-unknown-linux-gnu"
	testFlavor  = "install_only"
	testMessage = "chore(index): refresh via HTML parser"
)

type stubSource struct {
	entries []manifest.Entry
	err     error
	block   chan struct{}
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context) ([]manifest.Entry, error) {
	s.calls++
	if s.block != nil {
		<-s.block
	}
	return s.entries, s.err
}

func buildEntry(version string) manifest.Entry {
	name := "cpython-" + version + "+20250818-" + testArch + "-" + testFlavor + ".tar.gz"
	return manifest.Entry{
		Filename:    name,
		DownloadURL: "https://example.com/releases/download/20250818/" + name,
	}
}

func newTestRunner(t *testing.T, source Source) (*Runner, *gitx.FakeRepo) {
	t.Helper()
	repo := &gitx.FakeRepo{RootDir: t.TempDir(), Dirty: true, HeadHash: "abc123"}
	return &Runner{
		Source:        source,
		Repo:          repo,
		Arch:          testArch,
		Flavor:        testFlavor,
		IndexFile:     "index.json",
		CommitMessage: testMessage,
		Push:          true,
	}, repo
}

func TestRun_ChangedIndexCommitsOnce(t *testing.T) {
	source := &stubSource{entries: []manifest.Entry{buildEntry("3.12.10")}}
	runner, repo := newTestRunner(t, source)

	result, err := runner.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != catalog.StatusChanged {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(repo.Commits) != 1 {
		t.Fatalf("expected exactly 1 commit, got %d", len(repo.Commits))
	}
	if !strings.HasPrefix(repo.Commits[0], testMessage) {
		t.Fatalf("unexpected commit message %q", repo.Commits[0])
	}
	if !strings.HasSuffix(repo.Commits[0], " -- index.json") {
		t.Fatalf("commit not scoped to index.json: %q", repo.Commits[0])
	}
	if len(repo.Pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(repo.Pushes))
	}
	if result.Commit != "abc123" {
		t.Fatalf("unexpected commit hash %q", result.Commit)
	}

	ix, err := index.Load(filepath.Join(repo.RootDir, "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ix["3.12.10"]; !ok {
		t.Fatalf("index not written: %v", ix)
	}
}

func TestRun_UnchangedIndexIsNoOp(t *testing.T) {
	source := &stubSource{entries: []manifest.Entry{buildEntry("3.12.10")}}
	runner, repo := newTestRunner(t, source)

	// Pre-write the exact index the run will build.
	current := index.Build(source.entries, testArch, testFlavor)
	indexPath := filepath.Join(repo.RootDir, "index.json")
	if err := current.Write(indexPath); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(indexPath)

	result, err := runner.Run(context.Background(), "schedule")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != catalog.StatusUnchanged {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(repo.Commits) != 0 {
		t.Fatalf("no-op run must not commit, got %v", repo.Commits)
	}
	if !result.Diff.Empty() {
		t.Fatalf("expected empty diff, got %+v", result.Diff)
	}

	after, _ := os.ReadFile(indexPath)
	if string(before) != string(after) {
		t.Fatal("no-op run rewrote the index file")
	}

	// Immediate rerun stays a no-op.
	again, err := runner.Run(context.Background(), "schedule")
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if again.Status != catalog.StatusUnchanged || len(repo.Commits) != 0 {
		t.Fatal("rerun after no-change must also be a no-op")
	}
}

func TestRun_SourceFailureProducesNoCommit(t *testing.T) {
	source := &stubSource{err: errors.New("upstream down")}
	runner, repo := newTestRunner(t, source)

	result, err := runner.Run(context.Background(), "manual")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Status != catalog.StatusFailed {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(repo.Commits) != 0 || len(repo.Pushes) != 0 {
		t.Fatal("failed run must not touch the repository")
	}
	if _, statErr := os.Stat(filepath.Join(repo.RootDir, "index.json")); !os.IsNotExist(statErr) {
		t.Fatal("failed run must not write the index")
	}
}

func TestRun_FallbackServesWhenSourceFails(t *testing.T) {
	source := &stubSource{err: errors.New("manifest down")}
	fallback := &stubSource{entries: []manifest.Entry{buildEntry("3.11.9")}}
	runner, _ := newTestRunner(t, source)
	runner.Fallback = fallback

	result, err := runner.Run(context.Background(), "manual")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != catalog.StatusChanged {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback should be consulted once, got %d", fallback.calls)
	}
}

func TestRun_BothSourcesFailing(t *testing.T) {
	runner, _ := newTestRunner(t, &stubSource{err: errors.New("manifest down")})
	runner.Fallback = &stubSource{err: errors.New("page down")}

	if _, err := runner.Run(context.Background(), "manual"); err == nil {
		t.Fatal("expected error when both sources fail")
	}
}

func TestRun_EmptyMatchSetIsFailure(t *testing.T) {
	// Entries exist but none for this arch.
	source := &stubSource{entries: []manifest.Entry{{
		Filename:    "cpython-3.12.10+20250818-aarch64-apple-darwin-install_only.tar.gz",
		DownloadURL: "https://example.com/x.tar.gz",
	}}}
	runner, repo := newTestRunner(t, source)

	if _, err := runner.Run(context.Background(), "manual"); err == nil {
		t.Fatal("expected error for empty build set")
	}
	if len(repo.Commits) != 0 {
		t.Fatal("empty build set must not commit")
	}
}

func TestRun_CommitFailureAborts(t *testing.T) {
	source := &stubSource{entries: []manifest.Entry{buildEntry("3.12.10")}}
	runner, repo := newTestRunner(t, source)
	repo.CommitErr = errors.New("index.lock held")

	result, err := runner.Run(context.Background(), "manual")
	if err == nil {
		t.Fatal("expected commit error to surface")
	}
	if result.Status != catalog.StatusFailed {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(repo.Pushes) != 0 {
		t.Fatal("push must not run after a failed commit")
	}
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	source := &stubSource{
		entries: []manifest.Entry{buildEntry("3.12.10")},
		block:   make(chan struct{}),
	}
	runner, _ := newTestRunner(t, source)

	done := make(chan struct{})
	go func() {
		_, _ = runner.Run(context.Background(), "schedule")
		close(done)
	}()

	// Wait for the first run to be inside the fetch step.
	for !runner.Status().Running {
		time.Sleep(time.Millisecond)
	}

	if _, err := runner.Run(context.Background(), "manual"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(source.block)
	<-done

	if runner.Status().Running {
		t.Fatal("runner should be idle after completion")
	}
}

func TestRun_SkipCommitWritesFileOnly(t *testing.T) {
	source := &stubSource{entries: []manifest.Entry{buildEntry("3.12.10")}}
	runner, repo := newTestRunner(t, source)
	runner.SkipCommit = true

	result, err := runner.Run(context.Background(), "cli")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != catalog.StatusChanged {
		t.Fatalf("unexpected status %q", result.Status)
	}
	if len(repo.Commits) != 0 {
		t.Fatal("skip-commit run must not commit")
	}
	if _, err := os.Stat(filepath.Join(repo.RootDir, "index.json")); err != nil {
		t.Fatalf("index should still be written: %v", err)
	}
}
