package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	debversion "pault.ag/go/debian/version"

	"github.com/rexologue/pyindex-operator/internal/manifest"
)

var (
	rxBranch = regexp.MustCompile(`^\d+\.\d+$`)
	rxFull   = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// Index maps a full CPython version to the download URL of its build.
type Index map[string]string

// Build filters manifest entries down to one URL per version for the
// given architecture and flavor. When a version appears in more than one
// upstream release, the entry from the newer release tag wins.
func Build(entries []manifest.Entry, arch string, flavor string) Index {
	rx := filenamePattern(arch, flavor)
	out := Index{}
	tags := map[string]string{}
	for _, entry := range entries {
		m := rx.FindStringSubmatch(entry.Filename)
		if m == nil {
			continue
		}
		version := m[1]
		tag := releaseTag(entry.DownloadURL)
		if current, ok := tags[version]; ok && !versionGreater(tag, current) {
			continue
		}
		out[version] = entry.DownloadURL
		tags[version] = tag
	}
	return out
}

func filenamePattern(arch string, flavor string) *regexp.Regexp {
	return regexp.MustCompile(
		`^cpython-(\d+\.\d+\.\d+)\+.*` + regexp.QuoteMeta(arch) + `.*` + regexp.QuoteMeta(flavor),
	)
}

// releaseTag extracts the release tag segment from a GitHub download URL
// (…/releases/download/<tag>/<filename>). Empty when the URL has another
// shape.
func releaseTag(url string) string {
	const marker = "/releases/download/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return ""
	}
	rest := url[idx+len(marker):]
	tag, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return tag
}

func versionGreater(left string, right string) bool {
	if right == "" {
		return true
	}
	if left == "" {
		return false
	}
	l, err := debversion.Parse(left)
	if err != nil {
		return false
	}
	r, err := debversion.Parse(right)
	if err != nil {
		return false
	}
	return debversion.Compare(l, r) > 0
}

// Versions returns all indexed versions sorted newest first.
func (ix Index) Versions() []string {
	versions := make([]string, 0, len(ix))
	for v := range ix {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versionGreater(versions[i], versions[j])
	})
	return versions
}

// Latest resolves a branch like "3.12" to the newest "3.12.x" present,
// or "" when the branch has no builds.
func (ix Index) Latest(branch string) string {
	best := ""
	for v := range ix {
		if !strings.HasPrefix(v, branch+".") {
			continue
		}
		if versionGreater(v, best) {
			best = v
		}
	}
	return best
}

// Resolve accepts either a full X.Y.Z version or an X.Y branch and
// returns the concrete version to use.
func (ix Index) Resolve(version string) (string, error) {
	switch {
	case rxFull.MatchString(version):
		if _, ok := ix[version]; !ok {
			return "", fmt.Errorf("version %s absent from index", version)
		}
		return version, nil
	case rxBranch.MatchString(version):
		latest := ix.Latest(version)
		if latest == "" {
			return "", fmt.Errorf("no builds for %s.x in index", version)
		}
		return latest, nil
	default:
		return "", fmt.Errorf("version must be X.Y or X.Y.Z, got %q", version)
	}
}

// Equal reports whether two indexes serialize to the same bytes.
func (ix Index) Equal(other Index) bool {
	if len(ix) != len(other) {
		return false
	}
	for v, url := range ix {
		if other[v] != url {
			return false
		}
	}
	return true
}

// Diff summarizes what changed between a previous and a current index.
type Diff struct {
	Added   []string
	Changed []string
	Removed []string
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

func Compare(previous Index, current Index) Diff {
	var d Diff
	for v := range current {
		old, ok := previous[v]
		switch {
		case !ok:
			d.Added = append(d.Added, v)
		case old != current[v]:
			d.Changed = append(d.Changed, v)
		}
	}
	for v := range previous {
		if _, ok := current[v]; !ok {
			d.Removed = append(d.Removed, v)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}

// Marshal renders the index with sorted keys, two-space indentation and
// a trailing newline. The encoding is stable: an unchanged index always
// re-encodes to identical bytes.
func (ix Index) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads an index file. A missing file yields an empty index so the
// first refresh of a new repo behaves like any other change.
func Load(path string) (Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(raw, &ix); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return ix, nil
}

// Write persists the index atomically: the content lands in a temp file
// that is renamed over the destination, so readers never observe a
// partial index.
func (ix Index) Write(path string) error {
	data, err := ix.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// Fingerprint is a short content identity used for change logging.
func (ix Index) Fingerprint() (string, error) {
	data, err := ix.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
