// Package sync wires detection, conflict resolution, operation expansion,
// and batch execution into the top-level pipeline.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sheide/contentsync/internal/backup"
	"github.com/sheide/contentsync/internal/batch"
	"github.com/sheide/contentsync/internal/config"
	"github.com/sheide/contentsync/internal/detect"
	"github.com/sheide/contentsync/internal/frontmatter"
	"github.com/sheide/contentsync/internal/fsops"
	"github.com/sheide/contentsync/internal/media"
	"github.com/sheide/contentsync/internal/resolve"
)

// Engine orchestrates the sync process.
type Engine struct {
	cfg      *config.Config
	fm       frontmatter.Handler
	media    media.Handler
	detector *detect.Detector
	mgr      *fsops.Manager
	exec     *batch.Executor
	store    *backup.Store
	logger   *slog.Logger
	dryRun   bool
}

// NewEngine creates a sync engine. fm and mediaHandler may be nil, in which
// case the disk-backed defaults are used.
func NewEngine(cfg *config.Config, fm frontmatter.Handler, mediaHandler media.Handler, logger *slog.Logger, dryRun bool) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if fm == nil {
		fm = frontmatter.DiskHandler{}
	}
	if mediaHandler == nil {
		mediaHandler = media.NewDiskHandler(cfg.AttachmentsDir(), cfg.AssetsDir())
	}

	store := backup.NewStore(cfg.BackupDir(), logger, cfg.Target.Root, cfg.Source.Root)
	mgr := fsops.NewManager(store, logger, dryRun)

	return &Engine{
		cfg:      cfg,
		fm:       fm,
		media:    mediaHandler,
		detector: detect.NewDetector(cfg, fm, resolve.NewResolver(logger), logger),
		mgr:      mgr,
		exec:     batch.NewExecutor(mgr, store, logger, dryRun),
		store:    store,
		logger:   logger,
		dryRun:   dryRun,
	}
}

// Run executes one complete sync pass, optionally restricted to a single
// direction. The returned Result lists what was applied (or, under dry-run,
// planned) and every per-item error; a non-nil error means a batch failed
// and was rolled back, or the run was cancelled between batches.
func (e *Engine) Run(ctx context.Context, direction config.Direction) (*Result, error) {
	e.logger.Info("starting sync",
		"source", e.cfg.Source.Root,
		"target", e.cfg.Target.Root,
		"direction", string(direction),
		"dry_run", e.dryRun)

	plan, err := e.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("change detection failed: %w", err)
	}

	changes := filterDirection(plan.Changes, direction)
	result := &Result{Skipped: plan.Skipped, DryRun: e.dryRun}

	if len(changes) == 0 {
		e.logger.Info("nothing to sync")
		return result, nil
	}

	for _, group := range e.group(changes) {
		// External cancellation is honored only between batches; a started
		// batch always runs to commit or full rollback.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := e.runGroup(group, plan, result); err != nil {
			if !e.cfg.Sync.ContinueOnError {
				return result, err
			}
			e.logger.Warn("batch failed, continuing with next group", "error", err)
		}
	}

	if !e.dryRun {
		if _, err := e.store.Prune(e.cfg.Backup.RetentionCount); err != nil {
			e.logger.Warn("backup pruning failed", "error", err)
		}
	}

	e.logger.Info("sync complete",
		"applied", len(result.Applied),
		"errors", len(result.Errors),
		"operations", len(result.Operations))

	return result, nil
}

// group splits changes into batch groups. With continue_on_error each item
// gets its own batch so one failure cannot abandon unrelated items;
// otherwise the whole run shares a single all-or-nothing batch.
func (e *Engine) group(changes []detect.Change) [][]detect.Change {
	if !e.cfg.Sync.ContinueOnError {
		return [][]detect.Change{changes}
	}
	groups := make([][]detect.Change, 0, len(changes))
	for _, ch := range changes {
		groups = append(groups, []detect.Change{ch})
	}
	return groups
}

// runGroup expands one group of changes into operations, executes them as a
// batch, and on success writes the synced markers.
func (e *Engine) runGroup(group []detect.Change, plan *detect.Plan, result *Result) error {
	b := batch.New()
	var expanded []detect.Change

	for _, ch := range group {
		ops, err := e.expand(ch, plan)
		if err != nil {
			// Expansion failures are per-item and never abort the run.
			e.logger.Warn("skipping item, expansion failed",
				"key", ch.Key.String(), "error", err)
			result.Errors = append(result.Errors, ItemError{Key: ch.Key, Err: err})
			continue
		}
		b.Add(ops...)
		expanded = append(expanded, ch)
	}

	if len(b.Ops) == 0 {
		return nil
	}

	if e.dryRun {
		e.logPlanDetails(b)
	}

	if err := e.exec.Execute(b); err != nil {
		result.Operations = append(result.Operations, b.Ops...)
		for _, ch := range expanded {
			result.Errors = append(result.Errors, ItemError{Key: ch.Key, Err: err})
		}
		return err
	}

	result.Operations = append(result.Operations, b.Ops...)
	for _, ch := range expanded {
		result.Applied = append(result.Applied, AppliedChange{
			Key:       ch.Key,
			Kind:      ch.Kind,
			Direction: ch.Direction,
			Path:      appliedPath(ch),
		})
	}

	if !e.dryRun {
		e.writeSyncedMarkers(expanded, plan, result)
	}
	return nil
}

// expand turns one item-level change into primitive operations, including
// one per referenced media file for changes flowing into the target tree.
func (e *Engine) expand(ch detect.Change, plan *detect.Plan) ([]*fsops.Operation, error) {
	if ch.Kind == detect.ChangeDelete {
		return []*fsops.Operation{{
			Kind:   fsops.OpDelete,
			Target: ch.TargetPath,
			Backup: true,
		}}, nil
	}

	var srcPath, dstPath string
	if ch.Direction == resolve.SourceWins {
		srcPath, dstPath = ch.SourcePath, ch.TargetPath
	} else {
		srcPath, dstPath = ch.TargetPath, ch.SourcePath
	}

	doc, err := e.loadDoc(srcPath, plan)
	if err != nil {
		return nil, err
	}

	content, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode item %s: %w", ch.Key.String(), err)
	}

	kind := fsops.OpCreate
	if ch.Kind == detect.ChangeUpdate {
		kind = fsops.OpUpdate
	}
	ops := []*fsops.Operation{{
		Kind:    kind,
		Source:  "",
		Target:  dstPath,
		Content: content,
		Backup:  true,
	}}

	// Referenced media rides along into the target assets area. Items
	// flowing back into the source tree carry no media; the references
	// already point at files the target tree serves.
	if ch.Direction == resolve.SourceWins {
		mediaOps, err := e.expandMedia(ch, doc)
		if err != nil {
			return nil, err
		}
		ops = append(ops, mediaOps...)
	}

	return ops, nil
}

// expandMedia emits one write per media file referenced by the item body.
func (e *Engine) expandMedia(ch detect.Change, doc *frontmatter.Doc) ([]*fsops.Operation, error) {
	refs := e.media.FindReferences(doc.Body)
	if img := doc.Image(); img != "" {
		refs = append(refs, img)
	}

	itemDir := filepath.Dir(ch.SourcePath)
	var ops []*fsops.Operation
	seen := make(map[string]bool)

	for _, ref := range refs {
		src, err := e.media.Resolve(ref, itemDir)
		if err != nil {
			return nil, fmt.Errorf("media reference %q: %w", ref, err)
		}

		target := e.media.TargetPath(src, ch.Key)
		if seen[target] {
			continue
		}
		seen[target] = true

		data, err := e.media.Process(src)
		if err != nil {
			return nil, fmt.Errorf("media reference %q: %w", ref, err)
		}

		ops = append(ops, &fsops.Operation{
			Kind:    fsops.OpWrite,
			Source:  src,
			Target:  target,
			Content: data,
			Backup:  true,
		})
	}

	return ops, nil
}

// writeSyncedMarkers stamps both copies of every applied non-delete change
// so the next detection pass does not re-flag the difference this run
// introduced. Marker writes are best-effort and happen outside the batch.
func (e *Engine) writeSyncedMarkers(changes []detect.Change, plan *detect.Plan, result *Result) {
	now := time.Now()

	for _, ch := range changes {
		if ch.Kind == detect.ChangeDelete {
			continue
		}

		winner := ch.SourcePath
		if ch.Direction == resolve.TargetWins {
			winner = ch.TargetPath
		}

		doc, err := e.loadDoc(winner, plan)
		if err != nil {
			e.logger.Warn("marker write skipped, item unreadable",
				"key", ch.Key.String(), "error", err)
			continue
		}
		doc.SetSynced(now)

		content, err := doc.Encode()
		if err != nil {
			e.logger.Warn("marker write skipped, encode failed",
				"key", ch.Key.String(), "error", err)
			continue
		}

		for _, path := range []string{ch.SourcePath, ch.TargetPath} {
			op := &fsops.Operation{Kind: fsops.OpWrite, Target: path, Content: content}
			if err := e.mgr.Execute(op, ""); err != nil {
				e.logger.Warn("failed to write synced marker",
					"key", ch.Key.String(), "path", path, "error", err)
				result.Errors = append(result.Errors, ItemError{Key: ch.Key, Err: err})
			}
		}
	}
}

// loadDoc reuses the detector's parse cache, falling back to a fresh load.
func (e *Engine) loadDoc(path string, plan *detect.Plan) (*frontmatter.Doc, error) {
	if doc, ok := plan.Docs[path]; ok {
		return doc, nil
	}
	doc, err := e.fm.Load(path)
	if err != nil {
		return nil, err
	}
	plan.Docs[path] = doc
	return doc, nil
}

// logPlanDetails logs every planned operation for dry-run.
func (e *Engine) logPlanDetails(b *batch.Batch) {
	for _, op := range b.Ops {
		e.logger.Info("[dry-run] planned operation", "op", op.String())
	}
}

// filterDirection drops changes flowing the excluded way.
func filterDirection(changes []detect.Change, direction config.Direction) []detect.Change {
	if direction == "" || direction == config.DirectionBoth {
		return changes
	}

	var keep resolve.Direction
	if direction == config.DirectionSourceToTarget {
		keep = resolve.SourceWins
	} else {
		keep = resolve.TargetWins
	}

	filtered := make([]detect.Change, 0, len(changes))
	for _, ch := range changes {
		if ch.Direction == keep {
			filtered = append(filtered, ch)
		}
	}
	return filtered
}

// appliedPath is the path a change materialized at.
func appliedPath(ch detect.Change) string {
	if ch.Kind == detect.ChangeDelete || ch.Direction == resolve.SourceWins {
		return ch.TargetPath
	}
	return ch.SourcePath
}
