package fsops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sheide/contentsync/internal/backup"
)

// tmpPattern names the sibling temp files used for atomic writes. Scans
// skip dotfiles, so an orphaned temp never shows up as content.
const tmpPattern = ".contentsync-tmp-*"

// Manager executes operations one at a time. With dryRun set, every
// operation is validated and marked completed without touching the disk.
type Manager struct {
	store  *backup.Store
	logger *slog.Logger
	dryRun bool
}

// NewManager creates a Manager. store may be nil when no operation will
// request backups (e.g. marker writes outside a batch).
func NewManager(store *backup.Store, logger *slog.Logger, dryRun bool) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, dryRun: dryRun}
}

// Execute runs a single operation. The operation must be pending. On
// failure the state becomes StateFailed and a *FileOperationError is
// returned; this layer never retries.
func (m *Manager) Execute(op *Operation, batchDir string) error {
	if op.State != StatePending {
		return fmt.Errorf("operation %s is %s, not pending", op, op.State)
	}

	if m.dryRun {
		m.logger.Info("[dry-run] would apply", "op", op.Kind.String(), "target", op.Target, "source", op.Source)
		op.State = StateCompleted
		return nil
	}

	if err := m.backupIfRequested(op, batchDir); err != nil {
		op.State = StateFailed
		return &FileOperationError{Kind: op.Kind, Path: op.Target, Err: err}
	}

	var err error
	switch op.Kind {
	case OpDelete:
		err = m.delete(op)
	case OpMove:
		err = m.move(op)
	default:
		// Create, Update, Write, and Copy all reduce to the atomic write
		// primitive; the content either comes supplied or from the source.
		err = m.write(op)
	}

	if err != nil {
		op.State = StateFailed
		return err
	}
	op.State = StateCompleted
	m.logger.Debug("applied operation", "op", op.String())
	return nil
}

// backupIfRequested snapshots the existing target once per operation.
func (m *Manager) backupIfRequested(op *Operation, batchDir string) error {
	if !op.Backup || op.BackupPath != "" || m.store == nil || batchDir == "" {
		return nil
	}
	if _, err := os.Stat(op.Target); os.IsNotExist(err) {
		return nil
	}

	bp, err := m.store.Backup(batchDir, op.Target)
	if err != nil {
		return err
	}
	op.BackupPath = bp
	return nil
}

func (m *Manager) write(op *Operation) error {
	// Explicit content wins over the source path: operations carrying
	// processed bytes keep Source only as provenance.
	content := op.Content
	if content == nil && op.Source != "" {
		data, err := os.ReadFile(op.Source)
		if err != nil {
			return &FileOperationError{Kind: op.Kind, Path: op.Source, Err: err}
		}
		content = data
	}

	if err := writeAtomic(op.Target, content); err != nil {
		return &FileOperationError{Kind: op.Kind, Path: op.Target, Err: err}
	}
	return nil
}

func (m *Manager) move(op *Operation) error {
	if err := m.write(op); err != nil {
		return err
	}
	// The rename has made the new content visible; only now is the source
	// unlinked.
	if err := os.Remove(op.Source); err != nil {
		return &FileOperationError{Kind: op.Kind, Path: op.Source, Err: err}
	}
	return nil
}

func (m *Manager) delete(op *Operation) error {
	if err := os.Remove(op.Target); err != nil && !os.IsNotExist(err) {
		return &FileOperationError{Kind: op.Kind, Path: op.Target, Err: err}
	}
	return nil
}

// writeAtomic writes content to a sibling temp file in the target's
// directory and renames it over the target. The rename is the only step
// that makes the new content visible.
func writeAtomic(target string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), tmpPattern)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, target)
}
