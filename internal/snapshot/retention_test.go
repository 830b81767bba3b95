package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshots(t *testing.T, dir string, times ...time.Time) {
	t.Helper()
	for _, at := range times {
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(at)), []byte("data"), 0o644))
	}
}

func TestParseFileTime(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 30, 5, 0, time.UTC)

	got, ok := parseFileTime(FileName(at))
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	for _, name := range []string{
		"snapshot-invalid.parquet",
		"snapshot-20260115T103005Z.csv",
		"other-20260115T103005Z.parquet",
	} {
		_, ok := parseFileTime(name)
		assert.False(t, ok, name)
	}
}

func TestRetention_MaxAge(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	writeSnapshots(t, dir, now.Add(-72*time.Hour), now.Add(-25*time.Hour), now.Add(-time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	r := NewRetention(dir, 24*time.Hour, 0)

	dry := r.DryRun(now)
	assert.Equal(t, 2, dry.FilesDeleted)
	u, err := Usage(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, u.FileCount)

	res := r.Cleanup(now)
	assert.Equal(t, 2, res.FilesDeleted)
	assert.Equal(t, 1, res.FilesKept)
	assert.Equal(t, int64(8), res.BytesFreed)
	assert.Empty(t, res.Errors)

	u, err = Usage(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, u.FileCount)
	assert.True(t, u.Newest.Equal(now.Add(-time.Hour)))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	st := r.Stats()
	assert.Equal(t, int64(2), st.FilesDeleted)
	assert.True(t, st.LastRunTime.Equal(now))
}

func TestRetention_Keep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	writeSnapshots(t, dir, now.Add(-4*time.Minute), now.Add(-3*time.Minute), now.Add(-2*time.Minute), now.Add(-time.Minute))

	res := NewRetention(dir, 0, 2).Cleanup(now)
	assert.Equal(t, 2, res.FilesDeleted)
	assert.FileExists(t, filepath.Join(dir, FileName(now.Add(-time.Minute))))
	assert.FileExists(t, filepath.Join(dir, FileName(now.Add(-2*time.Minute))))
	assert.NoFileExists(t, filepath.Join(dir, FileName(now.Add(-4*time.Minute))))
}

func TestRetention_NewestAlwaysKept(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	writeSnapshots(t, dir, now.Add(-48*time.Hour))

	res := NewRetention(dir, time.Hour, 0).Cleanup(now)
	assert.Equal(t, 0, res.FilesDeleted)
	assert.Equal(t, 1, res.FilesKept)
}

func TestRetention_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	res := NewRetention(dir, time.Hour, 1).Cleanup(time.Now())
	assert.Empty(t, res.Errors)

	u, err := Usage(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, u.FileCount)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "3 files, 0 B", DiskUsage{FileCount: 3}.String())
}
