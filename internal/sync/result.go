package sync

import (
	"github.com/sheide/contentsync/internal/detect"
	"github.com/sheide/contentsync/internal/fsops"
	"github.com/sheide/contentsync/internal/item"
	"github.com/sheide/contentsync/internal/resolve"
)

// Result summarizes one sync run.
type Result struct {
	// Applied lists the item-level changes that committed. Under dry-run it
	// lists the changes that would commit.
	Applied []AppliedChange
	// Errors lists per-item failures: expansion problems, rolled-back
	// batches, and marker write failures.
	Errors []ItemError
	// Operations holds every primitive operation the run executed or
	// planned, in execution order.
	Operations []*fsops.Operation
	// Skipped lists paths detection could not map or parse.
	Skipped []string
	DryRun  bool
}

// AppliedChange records one committed item-level change.
type AppliedChange struct {
	Key       item.Key
	Kind      detect.ChangeKind
	Direction resolve.Direction
	Path      string
}

// ItemError ties a failure to the item it concerns.
type ItemError struct {
	Key item.Key
	Err error
}

func (e ItemError) Error() string {
	return e.Key.String() + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }
