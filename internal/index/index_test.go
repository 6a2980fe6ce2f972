package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rexologue/pyindex-operator/internal/manifest"
)

const (
	arch   = "x86_64-unknown-linux-gnu"
	flavor = "install_only"
)

func entry(filename, tag string) manifest.Entry {
	return manifest.Entry{
		Filename:    filename,
		DownloadURL: "https://example.com/releases/download/" + tag + "/" + filename,
	}
}

func TestBuild_FiltersArchAndFlavor(t *testing.T) {
	entries := []manifest.Entry{
		entry("cpython-3.12.10+20250818-x86_64-unknown-linux-gnu-install_only.tar.gz", "20250818"),
		entry("cpython-3.12.10+20250818-aarch64-apple-darwin-install_only.tar.gz", "20250818"),
		entry("cpython-3.12.10+20250818-x86_64-unknown-linux-gnu-debug-full.tar.zst", "20250818"),
		entry("cpython-3.11.9+20250818-x86_64-unknown-linux-gnu-install_only.tar.gz", "20250818"),
	}

	ix := Build(entries, arch, flavor)
	if len(ix) != 2 {
		t.Fatalf("expected 2 versions, got %d: %v", len(ix), ix)
	}
	if _, ok := ix["3.12.10"]; !ok {
		t.Fatal("missing 3.12.10")
	}
	if _, ok := ix["3.11.9"]; !ok {
		t.Fatal("missing 3.11.9")
	}
}

func TestBuild_NewerReleaseTagWins(t *testing.T) {
	old := entry("cpython-3.12.10+20250101-x86_64-unknown-linux-gnu-install_only.tar.gz", "20250101")
	newer := entry("cpython-3.12.10+20250818-x86_64-unknown-linux-gnu-install_only.tar.gz", "20250818")

	for _, order := range [][]manifest.Entry{{old, newer}, {newer, old}} {
		ix := Build(order, arch, flavor)
		if got := ix["3.12.10"]; got != newer.DownloadURL {
			t.Fatalf("expected newer release to win, got %s", got)
		}
	}
}

func TestLatest(t *testing.T) {
	ix := Index{
		"3.12.2":  "u1",
		"3.12.10": "u2",
		"3.11.9":  "u3",
	}
	if got := ix.Latest("3.12"); got != "3.12.10" {
		t.Fatalf("expected 3.12.10, got %q", got)
	}
	if got := ix.Latest("3.9"); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestResolve(t *testing.T) {
	ix := Index{"3.12.10": "u", "3.12.2": "u2"}

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "3.12.10", want: "3.12.10"},
		{in: "3.12", want: "3.12.10"},
		{in: "3.13", wantErr: true},
		{in: "3.12.99", wantErr: true},
		{in: "latest", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ix.Resolve(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Resolve(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarshal_StableBytes(t *testing.T) {
	ix := Index{"3.12.10": "a", "3.11.9": "b", "3.10.14": "c"}

	first, err := ix.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(first, []byte("\n")) {
		t.Fatal("expected trailing newline")
	}
	for i := 0; i < 5; i++ {
		again, err := ix.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("marshal not stable:\n%s\nvs\n%s", first, again)
		}
	}
}

func TestWriteLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	ix := Index{"3.12.10": "https://example.com/a.tar.gz"}
	if err := ix.Write(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.Equal(ix) {
		t.Fatalf("roundtrip mismatch: %v vs %v", loaded, ix)
	}

	// A rewrite of the same content must produce identical bytes.
	before, _ := os.ReadFile(path)
	if err := loaded.Write(path); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Fatal("rewrite of unchanged index altered bytes")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only index.json in dir, found %d entries", len(entries))
	}
}

func TestLoad_MissingFileIsEmptyIndex(t *testing.T) {
	ix, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ix) != 0 {
		t.Fatalf("expected empty index, got %v", ix)
	}
}

func TestCompare(t *testing.T) {
	previous := Index{"3.12.9": "a", "3.11.9": "b", "3.10.14": "c"}
	current := Index{"3.12.10": "a2", "3.11.9": "b2", "3.10.14": "c"}

	d := Compare(previous, current)
	if len(d.Added) != 1 || d.Added[0] != "3.12.10" {
		t.Fatalf("unexpected added: %v", d.Added)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "3.11.9" {
		t.Fatalf("unexpected changed: %v", d.Changed)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "3.12.9" {
		t.Fatalf("unexpected removed: %v", d.Removed)
	}
	if d.Empty() {
		t.Fatal("diff should not be empty")
	}

	if !Compare(current, current).Empty() {
		t.Fatal("self-diff should be empty")
	}
}

func TestVersions_SortedNewestFirst(t *testing.T) {
	ix := Index{"3.9.19": "a", "3.12.10": "b", "3.12.2": "c"}
	got := ix.Versions()
	want := []string{"3.12.10", "3.12.2", "3.9.19"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}
