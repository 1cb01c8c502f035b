package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWatchlist implements watchlist.Service for testing.
type mockWatchlist struct {
	entries []string
	listErr error
}

func (m *mockWatchlist) Add(path string) (bool, error) {
	m.entries = append(m.entries, path)
	return true, nil
}

func (m *mockWatchlist) List() ([]string, error) {
	return m.entries, m.listErr
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestService(t *testing.T, entries ...string) (*Impl, string) {
	t.Helper()
	root := t.TempDir()
	wl := &mockWatchlist{entries: entries}
	svc := NewWithClock(testLogger(), wl, root, filepath.Join(root, "ARTchain", "backups"), fixedClock(testTime))
	return svc, root
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{name: "inside root", root: "/srv/art", path: "/srv/art/notes/a.txt", want: filepath.Join("notes", "a.txt")},
		{name: "outside root", root: "/srv/art", path: "/etc/hosts", want: filepath.Join("_external", "etc", "hosts")},
		{name: "sibling prefix", root: "/srv/art", path: "/srv/artwork/x", want: filepath.Join("_external", "srv", "artwork", "x")},
		{name: "dotdot file name", root: "/srv/art", path: "/srv/art/..hidden", want: "..hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelPath(tt.root, tt.path))
		})
	}
}

func TestBackup_CopiesFiles(t *testing.T) {
	svc, root := newTestService(t)
	a := filepath.Join(root, "docs", "a.txt")
	b := filepath.Join(root, "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "bravo")
	mtime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(a, mtime, mtime))
	require.NoError(t, os.Chmod(b, 0o600))
	svc.watchlist = &mockWatchlist{entries: []string{a, b}}

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.NoError(t, err)
	assert.Equal(t, "backup_20240309_140507", result.Snapshot.Name)
	assert.Equal(t, []string{a, b}, result.Copied)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Failed)

	data, err := os.ReadFile(filepath.Join(result.Snapshot.Path, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	info, err := os.Stat(filepath.Join(result.Snapshot.Path, "docs", "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	info, err = os.Stat(filepath.Join(result.Snapshot.Path, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	manifest, err := ReadManifest(result.Snapshot.Path)
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.Name, manifest.Snapshot)
	require.Len(t, manifest.Files, 2)
	assert.Equal(t, "docs/a.txt", manifest.Files[0].Rel)
	assert.Len(t, manifest.Files[0].Digest, 64)
	assert.Equal(t, int64(5), manifest.Files[1].Size)
}

func TestBackup_MissingFileSkipped(t *testing.T) {
	svc, root := newTestService(t)
	present := filepath.Join(root, "present.txt")
	gone := filepath.Join(root, "gone.txt")
	nested := filepath.Join(root, "notes", "nested.txt")
	writeFile(t, present, "here")
	writeFile(t, nested, "deeper")
	svc.watchlist = &mockWatchlist{entries: []string{present, gone, nested}}

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.NoError(t, err)
	assert.Equal(t, []string{gone}, result.Missing)
	assert.Equal(t, []string{present, nested}, result.Copied)
	assert.Empty(t, result.Failed)
	assert.FileExists(t, filepath.Join(result.Snapshot.Path, "present.txt"))
	assert.FileExists(t, filepath.Join(result.Snapshot.Path, "notes", "nested.txt"))
	assert.NoFileExists(t, filepath.Join(result.Snapshot.Path, "gone.txt"))

	manifest, err := ReadManifest(result.Snapshot.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{gone}, manifest.Missing)
}

func TestBackup_DirectoryEntryFails(t *testing.T) {
	svc, root := newTestService(t)
	dir := filepath.Join(root, "adir")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	svc.watchlist = &mockWatchlist{entries: []string{dir}}

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, dir, result.Failed[0].Path)
	assert.Contains(t, result.Failed[0].Error.Error(), "not a regular file")
}

func TestBackup_ExternalFile(t *testing.T) {
	svc, _ := newTestService(t)
	outside := filepath.Join(t.TempDir(), "outside.txt")
	writeFile(t, outside, "far away")
	svc.watchlist = &mockWatchlist{entries: []string{outside}}

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.NoError(t, err)
	require.Equal(t, []string{outside}, result.Copied)
	assert.FileExists(t, filepath.Join(result.Snapshot.Path, RelPath(svc.rootDir, outside)))
	assert.Contains(t, RelPath(svc.rootDir, outside), "_external")
}

func TestBackup_EmptyWatchlist(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.NoError(t, err)
	assert.DirExists(t, result.Snapshot.Path)
	assert.FileExists(t, filepath.Join(result.Snapshot.Path, ManifestName))
	assert.Empty(t, result.Copied)
}

func TestBackup_WatchlistError(t *testing.T) {
	svc, _ := newTestService(t)
	svc.watchlist = &mockWatchlist{listErr: errors.New("corrupt")}

	result, err := svc.Backup(context.Background(), models.KindBackup)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "failed to load watchlist")
}

func TestBackup_CancelledContext(t *testing.T) {
	svc, root := newTestService(t)
	f := filepath.Join(root, "f.txt")
	writeFile(t, f, "x")
	svc.watchlist = &mockWatchlist{entries: []string{f}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Backup(ctx, models.KindBackup)

	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0].Error, context.Canceled)
}

func TestBackup_SameSecondCollision(t *testing.T) {
	svc, root := newTestService(t)
	f := filepath.Join(root, "f.txt")
	writeFile(t, f, "x")
	svc.watchlist = &mockWatchlist{entries: []string{f}}

	first, err := svc.Backup(context.Background(), models.KindBackup)
	require.NoError(t, err)
	second, err := svc.Backup(context.Background(), models.KindBackup)
	require.NoError(t, err)
	third, err := svc.Backup(context.Background(), models.KindBackup)
	require.NoError(t, err)

	assert.Equal(t, "backup_20240309_140507", first.Snapshot.Name)
	assert.Equal(t, "backup_20240309_140507_01", second.Snapshot.Name)
	assert.Equal(t, "backup_20240309_140507_02", third.Snapshot.Name)

	latest, err := svc.Latest(models.KindBackup)
	require.NoError(t, err)
	assert.Equal(t, third.Snapshot.Name, latest.Name)
}

func TestList_FiltersAndSorts(t *testing.T) {
	svc, _ := newTestService(t)
	for _, name := range []string{
		"backup_20240102_000000",
		"backup_20231231_235959",
		"prerollback_20240103_000000",
		"backup_garbage",
		"unrelated",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), name), 0o755))
	}
	writeFile(t, filepath.Join(svc.Dir(), "backup_20240104_000000"), "a file, not a snapshot")

	backups, err := svc.List(models.KindBackup)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "backup_20231231_235959", backups[0].Name)
	assert.Equal(t, "backup_20240102_000000", backups[1].Name)
	assert.Equal(t, 2024, backups[1].CreatedAt.Year())

	safety, err := svc.List(models.KindPreRollback)
	require.NoError(t, err)
	require.Len(t, safety, 1)
	assert.Equal(t, models.KindPreRollback, safety[0].Kind)
}

func TestList_NoBackupDir(t *testing.T) {
	svc, _ := newTestService(t)

	snapshots, err := svc.List(models.KindBackup)

	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestLatest_NoSnapshots(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Latest(models.KindBackup)

	assert.ErrorIs(t, err, ErrNoSnapshots)
}

func TestLatest_IgnoresPreRollback(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), "backup_20240101_000000"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), "prerollback_20250101_000000"), 0o755))

	latest, err := svc.Latest(models.KindBackup)

	require.NoError(t, err)
	assert.Equal(t, "backup_20240101_000000", latest.Name)
}

func TestLatest_IgnoresMalformedNames(t *testing.T) {
	svc, _ := newTestService(t)
	for _, name := range []string{
		"backup_20240101_120000",
		"backup_20240101_120000_07",
		"backup_20240101_120000garbage",
		"backup_20240101_120000_7",
		"backup_20240101_120000_abc",
		"backup_20991231_235959.tmp",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), name), 0o755))
	}

	snapshots, err := svc.List(models.KindBackup)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	latest, err := svc.Latest(models.KindBackup)
	require.NoError(t, err)
	assert.Equal(t, "backup_20240101_120000_07", latest.Name)
}

func TestVerify(t *testing.T) {
	svc, root := newTestService(t)
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	c := filepath.Join(root, "c.txt")
	writeFile(t, a, "one")
	writeFile(t, b, "two")
	writeFile(t, c, "three")
	svc.watchlist = &mockWatchlist{entries: []string{a, b, c}}

	result, err := svc.Backup(context.Background(), models.KindBackup)
	require.NoError(t, err)

	verified, err := svc.Verify(result.Snapshot.Name)
	require.NoError(t, err)
	assert.True(t, verified.OK())

	writeFile(t, filepath.Join(result.Snapshot.Path, "b.txt"), "tampered")
	require.NoError(t, os.Remove(filepath.Join(result.Snapshot.Path, "c.txt")))

	verified, err = svc.Verify(result.Snapshot.Name)
	require.NoError(t, err)
	assert.False(t, verified.OK())
	assert.Equal(t, []models.VerifyEntry{
		{Rel: "a.txt", Status: models.VerifyOK},
		{Rel: "b.txt", Status: models.VerifyMismatch},
		{Rel: "c.txt", Status: models.VerifyMissing},
	}, verified.Entries)
}

func TestVerify_UnknownSnapshot(t *testing.T) {
	svc, _ := newTestService(t)

	for _, name := range []string{"", "backup_20240101_000000", "../etc"} {
		_, err := svc.Verify(name)
		assert.ErrorIs(t, err, ErrSnapshotNotFound, name)
	}
}

func TestPrune(t *testing.T) {
	svc, _ := newTestService(t)
	names := []string{
		"backup_20240101_000000",
		"backup_20240102_000000",
		"backup_20240103_000000",
		"backup_20240104_000000",
		"prerollback_20240101_000000",
	}
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), name), 0o755))
	}

	result, err := svc.Prune(models.RetentionPolicy{KeepLast: 2})

	require.NoError(t, err)
	assert.Equal(t, []string{"backup_20240101_000000", "backup_20240102_000000"}, result.Removed)
	assert.Equal(t, 3, result.Kept)

	backups, err := svc.List(models.KindBackup)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "backup_20240103_000000", backups[0].Name)
	assert.DirExists(t, filepath.Join(svc.Dir(), "prerollback_20240101_000000"))
}

func TestPrune_Unlimited(t *testing.T) {
	svc, _ := newTestService(t)
	for _, name := range []string{"backup_20240101_000000", "backup_20240102_000000"} {
		require.NoError(t, os.MkdirAll(filepath.Join(svc.Dir(), name), 0o755))
	}

	result, err := svc.Prune(models.RetentionPolicy{KeepLast: 0})

	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 2, result.Kept)
}

func TestCopyFile_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	writeFile(t, src, "new content")
	writeFile(t, dst, "old")

	digest, err := CopyFile(src, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	want, err := Digest(dst)
	require.NoError(t, err)
	assert.Equal(t, want, digest)

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()

	_, err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))

	assert.True(t, os.IsNotExist(err))
}
