// Package batch groups filesystem operations into an all-or-nothing unit.
// Before any destructive step runs, every existing target is snapshotted;
// on failure the completed prefix is undone in reverse order, leaving every
// touched path byte-identical to its pre-batch state.
package batch

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sheide/contentsync/internal/backup"
	"github.com/sheide/contentsync/internal/fsops"
)

// Batch is an ordered sequence of operations sharing one backup and
// rollback scope.
type Batch struct {
	Timestamp time.Time
	Ops       []*fsops.Operation
	// Backups maps target path to snapshot path, populated in the
	// front-loaded backup phase before any mutation.
	Backups map[string]string
}

// New creates a batch stamped with the current time.
func New(ops ...*fsops.Operation) *Batch {
	return &Batch{
		Timestamp: time.Now(),
		Ops:       ops,
		Backups:   make(map[string]string),
	}
}

// Add appends an operation.
func (b *Batch) Add(ops ...*fsops.Operation) {
	b.Ops = append(b.Ops, ops...)
}

// Error is a batch-level failure. It carries the operations that were
// rolled back so the caller can report exactly what was undone.
type Error struct {
	Cause      error
	RolledBack []*fsops.Operation
}

func (e *Error) Error() string {
	return fmt.Sprintf("batch failed (%d operations rolled back): %v", len(e.RolledBack), e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Executor drives batches through the operation manager.
type Executor struct {
	mgr    *fsops.Manager
	store  *backup.Store
	logger *slog.Logger
	dryRun bool
}

// NewExecutor creates an Executor.
func NewExecutor(mgr *fsops.Manager, store *backup.Store, logger *slog.Logger, dryRun bool) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{mgr: mgr, store: store, logger: logger, dryRun: dryRun}
}

// Execute runs the batch. Operations execute strictly in submission order;
// the first failure stops the batch and drives a full rollback, returning a
// *Error. On success backups are retained for the recovery window.
func (e *Executor) Execute(b *Batch) error {
	if len(b.Ops) == 0 {
		return nil
	}
	if b.Backups == nil {
		b.Backups = make(map[string]string)
	}

	batchDir := e.store.BatchDir(b.Timestamp.Unix())

	if !e.dryRun {
		if err := e.backupPhase(b, batchDir); err != nil {
			return &Error{Cause: err}
		}
	}

	for i, op := range b.Ops {
		if err := e.mgr.Execute(op, batchDir); err != nil {
			e.logger.Error("operation failed, rolling back batch",
				"op", op.String(), "completed", i, "error", err)
			rolledBack := e.rollback(b, i)
			return &Error{Cause: err, RolledBack: rolledBack}
		}
	}

	e.logger.Debug("batch committed", "operations", len(b.Ops))
	return nil
}

// backupPhase snapshots every existing target before the first mutation.
func (e *Executor) backupPhase(b *Batch, batchDir string) error {
	for _, op := range b.Ops {
		if _, done := b.Backups[op.Target]; done {
			// Several operations may share a target; one snapshot covers
			// them all and rollback restores the true pre-batch state.
			op.BackupPath = b.Backups[op.Target]
			continue
		}
		if _, err := os.Stat(op.Target); os.IsNotExist(err) {
			continue
		}

		bp, err := e.store.Backup(batchDir, op.Target)
		if err != nil {
			return fmt.Errorf("backup phase failed for %s: %w", op.Target, err)
		}
		b.Backups[op.Target] = bp
		op.BackupPath = bp
	}
	return nil
}

// rollback undoes the completed prefix b.Ops[:failed] in reverse order.
// Targets with a snapshot are restored from it; targets first created by
// this batch are removed. Moves additionally get their source back.
func (e *Executor) rollback(b *Batch, failed int) []*fsops.Operation {
	var rolledBack []*fsops.Operation

	for i := failed - 1; i >= 0; i-- {
		op := b.Ops[i]
		if op.State != fsops.StateCompleted {
			continue
		}

		if op.Kind == fsops.OpMove {
			// The source was unlinked after the rename; its content is at
			// the target, so put it back before the target is reverted.
			if err := e.store.Restore(op.Target, op.Source); err != nil {
				e.logger.Error("rollback failed to restore move source",
					"op", op.String(), "error", err)
			}
		}

		if bp, ok := b.Backups[op.Target]; ok {
			if err := e.store.Restore(bp, op.Target); err != nil {
				e.logger.Error("rollback failed to restore target",
					"op", op.String(), "backup", bp, "error", err)
				continue
			}
		} else {
			// The batch created this target; undo is removal.
			if err := os.Remove(op.Target); err != nil && !os.IsNotExist(err) {
				e.logger.Error("rollback failed to remove created target",
					"op", op.String(), "error", err)
				continue
			}
		}

		op.State = fsops.StateRolledBack
		rolledBack = append(rolledBack, op)
	}

	return rolledBack
}
