package backup

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// externalDir holds files that live outside the root directory.
const externalDir = "_external"

// RelPath returns the location of path inside a snapshot, relative to the
// snapshot directory. Files under root mirror their path relative to root;
// anything else is placed under _external/ with its absolute path.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel) {
		return rel
	}

	vol := filepath.VolumeName(path)
	trimmed := strings.TrimLeft(path[len(vol):], string(filepath.Separator))
	if vol != "" {
		trimmed = filepath.Join(strings.TrimSuffix(vol, ":"), trimmed)
	}
	return filepath.Join(externalDir, trimmed)
}

// CopyFile copies src to dst, keeping permission bits and modification time,
// and returns the blake2b-256 digest of the copied bytes. The destination is
// written to a temp file next to it and renamed into place, so an existing
// dst is either fully replaced or left untouched.
func CopyFile(src, dst string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", src)
	}

	in, err := os.Open(src) //nolint:gosec // path comes from the watchlist
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h, err := blake2b.New256(nil)
	if err != nil {
		_ = tmp.Close()
		return "", err
	}

	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to copy: %w", err)
	}

	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to set mode: %w", err)
	}
	if err := os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime()); err != nil {
		return "", fmt.Errorf("failed to set times: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns the blake2b-256 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside a snapshot
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
