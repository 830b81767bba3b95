package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileTimeLayout = "20060102T150405Z"

// Retention prunes old snapshot files from a directory. Only files named by
// FileName are considered; anything else in the directory is left alone.
type Retention struct {
	mu sync.Mutex

	dir    string
	maxAge time.Duration
	keep   int

	stats RetentionStats
}

// RetentionStats holds cumulative cleanup statistics.
type RetentionStats struct {
	LastRunTime  time.Time
	FilesDeleted int64
	BytesFreed   int64
	Errors       int64
}

// CleanupResult holds the result of one cleanup run.
type CleanupResult struct {
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	Errors       []error
}

// NewRetention creates a retention policy for dir. Files older than maxAge
// are removed; at most keep files are retained. Zero disables either limit.
func NewRetention(dir string, maxAge time.Duration, keep int) *Retention {
	return &Retention{dir: dir, maxAge: maxAge, keep: keep}
}

// Cleanup deletes snapshot files that fall outside the policy. The newest
// file is never deleted.
func (r *Retention) Cleanup(now time.Time) CleanupResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.cleanup(now, false)

	r.stats.LastRunTime = now
	r.stats.FilesDeleted += int64(result.FilesDeleted)
	r.stats.BytesFreed += result.BytesFreed
	r.stats.Errors += int64(len(result.Errors))

	if result.FilesDeleted > 0 {
		log.Info("snapshots pruned",
			"dir", r.dir,
			"deleted", result.FilesDeleted,
			"freed", formatBytes(result.BytesFreed))
	}
	for _, err := range result.Errors {
		log.Warn("snapshot prune failed", "error", err)
	}

	return result
}

// DryRun reports what Cleanup would delete without deleting anything.
func (r *Retention) DryRun(now time.Time) CleanupResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanup(now, true)
}

func (r *Retention) cleanup(now time.Time, dryRun bool) CleanupResult {
	var result CleanupResult

	files, err := listSnapshots(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("list snapshots: %w", err))
		}
		return result
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool { return files[i].at.After(files[j].at) })

	cutoff := now.Add(-r.maxAge)
	for i, f := range files {
		expired := r.maxAge > 0 && f.at.Before(cutoff)
		surplus := r.keep > 0 && i >= r.keep
		if i == 0 || (!expired && !surplus) {
			result.FilesKept++
			continue
		}

		if !dryRun {
			if err := os.Remove(f.path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", f.path, err))
				continue
			}
		}
		result.FilesDeleted++
		result.BytesFreed += f.size
	}

	return result
}

// Stats returns cumulative statistics.
func (r *Retention) Stats() RetentionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// DiskUsage holds the size of the snapshot directory.
type DiskUsage struct {
	FileCount int
	TotalSize int64
	Newest    time.Time
}

func (u DiskUsage) String() string {
	return fmt.Sprintf("%d files, %s", u.FileCount, formatBytes(u.TotalSize))
}

// Usage returns the snapshot files currently in dir.
func Usage(dir string) (DiskUsage, error) {
	files, err := listSnapshots(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return DiskUsage{}, nil
		}
		return DiskUsage{}, err
	}

	var u DiskUsage
	for _, f := range files {
		u.FileCount++
		u.TotalSize += f.size
		if f.at.After(u.Newest) {
			u.Newest = f.at
		}
	}
	return u, nil
}

type snapshotFile struct {
	path string
	size int64
	at   time.Time
}

func listSnapshots(dir string) ([]snapshotFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []snapshotFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		at, ok := parseFileTime(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{
			path: filepath.Join(dir, entry.Name()),
			size: info.Size(),
			at:   at,
		})
	}
	return files, nil
}

// parseFileTime extracts the export time from a FileName.
func parseFileTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "snapshot-") || filepath.Ext(name) != ".parquet" {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "snapshot-"), ".parquet")
	t, err := time.Parse(fileTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
