package installer

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// extractTarGz unpacks archive into dest, dropping the leading path
// component strip (upstream tarballs wrap everything in "python/").
// Entries escaping dest are rejected.
func extractTarGz(archive string, dest string, strip string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create dest: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		rel, ok := stripComponent(header.Name, strip)
		if !ok || rel == "" {
			continue
		}
		target, err := securePath(dest, rel)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", rel, err)
			}
		case tar.TypeSymlink:
			if err := secureLinkTarget(rel, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create dir for %s: %w", rel, err)
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove existing %s: %w", rel, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", rel, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create dir for %s: %w", rel, err)
			}
			if err := writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", rel, err)
			}
		default:
			// Hard links and device nodes do not occur in these builds.
		}
	}
}

// stripComponent removes the leading strip directory from a tar entry
// name. Entries outside that directory are skipped. The remainder is
// checked for traversal before any cleaning, so "python/../x" is caught
// rather than silently normalized.
func stripComponent(name string, strip string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	if strip == "" {
		return strings.TrimSuffix(name, "/"), true
	}
	if name == strip || name == strip+"/" {
		return "", true
	}
	if !strings.HasPrefix(name, strip+"/") {
		return "", false
	}
	return strings.TrimSuffix(name[len(strip)+1:], "/"), true
}

func securePath(dest string, rel string) (string, error) {
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") ||
		strings.HasSuffix(rel, "/..") || strings.Contains(rel, "/../") {
		return "", fmt.Errorf("archive entry %q escapes destination", rel)
	}
	return filepath.Join(dest, filepath.FromSlash(rel)), nil
}

// secureLinkTarget rejects symlinks whose resolved target would leave
// the extraction root.
func secureLinkTarget(rel string, linkname string) error {
	if path.IsAbs(linkname) {
		return fmt.Errorf("archive symlink %q has absolute target %q", rel, linkname)
	}
	resolved := path.Join(path.Dir(rel), linkname)
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return fmt.Errorf("archive symlink %q escapes destination (-> %q)", rel, linkname)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
