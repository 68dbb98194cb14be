// Package backup stores timestamped pre-mutation snapshots of files touched
// by a batch. Snapshots feed rollback and are pruned by a retention policy
// that keeps the N most recent batches.
package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// batchPrefix names one batch's snapshot directory: batch_<unix-timestamp>.
const batchPrefix = "batch_"

// Store is a backup store rooted at a single directory. Paths inside one of
// the configured tree roots are stored under their tree-relative path so a
// snapshot directory mirrors the layout of the files it protects.
type Store struct {
	dir    string
	roots  []string
	logger *slog.Logger
}

// NewStore creates a store writing under dir. roots are the tree roots used
// to compute relative snapshot paths.
func NewStore(dir string, logger *slog.Logger, roots ...string) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, roots: roots, logger: logger}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// BatchDir returns the snapshot directory name for a batch started at the
// given unix timestamp.
func (s *Store) BatchDir(unix int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d", batchPrefix, unix))
}

// Backup copies path into the batch directory and returns the snapshot path.
func (s *Store) Backup(batchDir, path string) (string, error) {
	dst := filepath.Join(batchDir, s.relPath(path))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", path, err)
	}

	s.logger.Debug("backed up file", "path", path, "backup", dst)
	return dst, nil
}

// Restore copies a snapshot back over target using a temp-file-then-rename
// write, so a crashed restore never leaves a truncated target.
func (s *Store) Restore(backupPath, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := copyFile(backupPath, target); err != nil {
		return fmt.Errorf("failed to restore %s from %s: %w", target, backupPath, err)
	}

	s.logger.Debug("restored file", "path", target, "backup", backupPath)
	return nil
}

// Batches returns existing batch directory names sorted oldest first.
func (s *Store) Batches() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var batches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), batchPrefix) {
			batches = append(batches, e.Name())
		}
	}

	sort.Slice(batches, func(i, j int) bool {
		return batchStamp(batches[i]) < batchStamp(batches[j])
	})
	return batches, nil
}

// Prune removes all but the keep most recent batch directories and returns
// the number removed. Retention is independent of sync success or failure.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	batches, err := s.Batches()
	if err != nil {
		return 0, err
	}
	if len(batches) <= keep {
		return 0, nil
	}

	removed := 0
	for _, name := range batches[:len(batches)-keep] {
		path := filepath.Join(s.dir, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to prune backup %s: %w", name, err)
		}
		s.logger.Debug("pruned backup batch", "batch", name)
		removed++
	}
	return removed, nil
}

// relPath maps an absolute path to its location inside a batch directory.
// Paths under a known root keep their tree-relative layout; anything else
// falls back to the full path with the leading separator stripped.
func (s *Store) relPath(path string) string {
	for _, root := range s.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return strings.TrimLeft(path, string(filepath.Separator))
}

func batchStamp(name string) int64 {
	n, err := strconv.ParseInt(strings.TrimPrefix(name, batchPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// copyFile copies src to dst via a sibling temp file and an atomic rename,
// preserving the source mode.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".contentsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
