package watchlist

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func readFile(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []string
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestNew_CreatesEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ARTchain", "watchlist.json")

	svc, err := New(testLogger(), path)

	require.NoError(t, err)
	assert.Equal(t, path, svc.Path())
	assert.Empty(t, readFile(t, path))
}

func TestNew_KeepsExistingList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	require.NoError(t, os.WriteFile(path, []byte(`["/a/b.txt"]`), 0o644))

	svc, err := New(testLogger(), path)
	require.NoError(t, err)

	entries, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b.txt"}, entries)
}

func TestAdd_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.json")
	svc, err := New(testLogger(), path)
	require.NoError(t, err)

	target := filepath.Join(dir, "notes.txt")

	added, err := svc.Add(target)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.Add(target)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{target}, readFile(t, path))
}

func TestAdd_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(testLogger(), filepath.Join(dir, "watchlist.json"))
	require.NoError(t, err)

	paths := []string{
		filepath.Join(dir, "c.txt"),
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
	}
	for _, p := range paths {
		_, err := svc.Add(p)
		require.NoError(t, err)
	}

	entries, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, paths, entries)
}

func TestAdd_ResolvesRelativePath(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(testLogger(), filepath.Join(dir, "watchlist.json"))
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = svc.Add("sub/../relative.txt")
	require.NoError(t, err)

	entries, err := svc.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, filepath.IsAbs(entries[0]))
	assert.Equal(t, "relative.txt", filepath.Base(entries[0]))
}

func TestAdd_PrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.json")
	svc, err := New(testLogger(), path)
	require.NoError(t, err)

	_, err = svc.Add(filepath.Join(dir, "x.txt"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[\n  \"")

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, ".watchlist-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestList_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	svc, err := New(testLogger(), path)
	require.NoError(t, err)

	_, err = svc.List()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse watchlist")

	_, err = svc.Add("/tmp/x")
	require.Error(t, err)
}
