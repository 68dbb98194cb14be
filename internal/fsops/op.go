// Package fsops executes single filesystem mutations with the
// temp-file-then-rename protocol. A target path either ends up fully in its
// new state or is left exactly as it was; a partially written file is never
// observable at the target path.
package fsops

import "fmt"

// Kind is the operation variant.
type Kind int

const (
	// OpCreate writes a file that did not exist at the target.
	OpCreate Kind = iota
	// OpUpdate replaces an existing target.
	OpUpdate
	// OpDelete unlinks the target.
	OpDelete
	// OpWrite writes supplied content to the target.
	OpWrite
	// OpCopy writes the source file's content to the target.
	OpCopy
	// OpMove copies source to target, then unlinks the source only after
	// the rename has succeeded.
	OpMove
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpWrite:
		return "write"
	case OpCopy:
		return "copy"
	case OpMove:
		return "move"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of an operation.
type State int

const (
	// StatePending is the initial state.
	StatePending State = iota
	// StateCompleted means the mutation is visible on disk.
	StateCompleted
	// StateFailed is terminal for the operation and triggers rollback of
	// the enclosing batch.
	StateFailed
	// StateRolledBack means a completed operation was undone during a
	// rollback pass.
	StateRolledBack
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Operation is a single filesystem mutation.
type Operation struct {
	Kind   Kind
	Source string // read side for copy/move; empty otherwise
	Target string
	// Content holds the bytes for content-supplied kinds (write, and
	// create/update without a source).
	Content []byte
	// Backup requests a pre-mutation snapshot of the existing target.
	Backup bool
	// BackupPath is set once a snapshot exists, either front-loaded by the
	// batch executor or taken here.
	BackupPath string
	State      State
}

// String describes the operation for logs.
func (op *Operation) String() string {
	if op.Source != "" {
		return fmt.Sprintf("%s %s -> %s", op.Kind, op.Source, op.Target)
	}
	return fmt.Sprintf("%s %s", op.Kind, op.Target)
}

// FileOperationError reports a failed filesystem mutation, carrying the
// operation kind, the path involved, and the underlying cause.
type FileOperationError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }
