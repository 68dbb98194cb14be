// Package detect scans both trees, matches items by canonical key, and
// classifies each as unchanged, create, update, or delete. Detection has no
// filesystem side effects; it produces a plan for the orchestrator.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sheide/contentsync/internal/config"
	"github.com/sheide/contentsync/internal/frontmatter"
	"github.com/sheide/contentsync/internal/item"
	"github.com/sheide/contentsync/internal/resolve"
)

// ChangeKind classifies a pending change.
type ChangeKind int

const (
	// ChangeCreate materializes an item on the side that lacks it.
	ChangeCreate ChangeKind = iota
	// ChangeUpdate propagates the winning side of a dual-present item.
	ChangeUpdate
	// ChangeDelete removes the target copy of an item that was
	// intentionally deleted from the source tree.
	ChangeDelete
)

// String returns a human-readable representation of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one pending item-level change.
type Change struct {
	Kind      ChangeKind
	Direction resolve.Direction
	Key       item.Key
	// SourcePath and TargetPath are set when the respective copy exists or,
	// for creates, where the new copy will be written.
	SourcePath string
	TargetPath string
	Status     frontmatter.Status
	// Conflict carries the resolution detail for updates.
	Conflict *resolve.ConflictInfo
}

// Plan is the output of one detection pass.
type Plan struct {
	Changes   []Change
	Conflicts []*resolve.ConflictInfo
	// Skipped lists per-item validation failures (malformed frontmatter,
	// unmappable paths) that were logged and excluded from this run.
	Skipped []string
	// Docs caches every parsed item by path so the orchestrator does not
	// parse anything a second time.
	Docs map[string]*frontmatter.Doc
}

// Detector scans the two trees.
type Detector struct {
	cfg      *config.Config
	fm       frontmatter.Handler
	resolver *resolve.Resolver
	logger   *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg *config.Config, fm frontmatter.Handler, resolver *resolve.Resolver, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, fm: fm, resolver: resolver, logger: logger}
}

// pairing is the per-key view across both trees.
type pairing struct {
	sourcePath string
	targetPath string
}

// Detect enumerates both trees and classifies every canonical key. The scan
// is not resumable; cancellation is honored only at the start.
func (d *Detector) Detect(ctx context.Context) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := &Plan{Docs: make(map[string]*frontmatter.Doc)}
	pairs := make(map[item.Key]*pairing)

	if err := d.scanSource(pairs, plan); err != nil {
		return nil, err
	}
	if err := d.scanTarget(pairs, plan); err != nil {
		return nil, err
	}

	// Deterministic iteration order keeps runs reproducible and testable.
	keys := make([]item.Key, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		d.classify(key, pairs[key], plan)
	}

	d.logger.Info("detection pass complete",
		"items", len(pairs),
		"changes", len(plan.Changes),
		"conflicts", len(plan.Conflicts),
		"skipped", len(plan.Skipped))

	return plan, nil
}

// scanSource maps every source item to its canonical key.
func (d *Detector) scanSource(pairs map[item.Key]*pairing, plan *Plan) error {
	files, err := item.DiscoverMarkdown(d.cfg.ItemsDir())
	if err != nil {
		return fmt.Errorf("failed to scan source tree: %w", err)
	}

	for _, path := range files {
		key, err := item.ParseSourcePath(d.cfg.ItemsDir(), path)
		if err != nil {
			// Never guess a date; the item sits out this run.
			d.logger.Warn("skipping unmappable source item", "path", path, "error", err)
			plan.Skipped = append(plan.Skipped, path)
			continue
		}
		if existing, dup := pairs[key]; dup && existing.sourcePath != "" {
			d.logger.Warn("duplicate canonical key in source tree, keeping first",
				"key", key.String(), "path", path, "existing", existing.sourcePath)
			plan.Skipped = append(plan.Skipped, path)
			continue
		}
		p := ensurePair(pairs, key)
		p.sourcePath = path
	}
	return nil
}

// scanTarget maps every target item, drafts area included, to its key.
func (d *Detector) scanTarget(pairs map[item.Key]*pairing, plan *Plan) error {
	for _, dir := range []string{d.cfg.PostsDir(), d.cfg.DraftsDir()} {
		files, err := item.DiscoverMarkdown(dir)
		if err != nil {
			return fmt.Errorf("failed to scan target tree: %w", err)
		}

		for _, path := range files {
			key, err := item.ParseTargetName(path)
			if err != nil {
				d.logger.Warn("skipping unmappable target item", "path", path, "error", err)
				plan.Skipped = append(plan.Skipped, path)
				continue
			}
			if existing, dup := pairs[key]; dup && existing.targetPath != "" {
				d.logger.Warn("duplicate canonical key in target tree, keeping first",
					"key", key.String(), "path", path, "existing", existing.targetPath)
				plan.Skipped = append(plan.Skipped, path)
				continue
			}
			p := ensurePair(pairs, key)
			p.targetPath = path
		}
	}
	return nil
}

// classify decides what, if anything, to do for one key.
func (d *Detector) classify(key item.Key, p *pairing, plan *Plan) {
	switch {
	case p.sourcePath != "" && p.targetPath == "":
		d.classifySourceOnly(key, p, plan)
	case p.sourcePath == "" && p.targetPath != "":
		d.classifyTargetOnly(key, p, plan)
	default:
		d.classifyBoth(key, p, plan)
	}
}

// classifySourceOnly handles items present only in the source tree.
func (d *Detector) classifySourceOnly(key item.Key, p *pairing, plan *Plan) {
	doc, ok := d.load(p.sourcePath, plan)
	if !ok {
		return
	}

	status := doc.Status()
	if status == frontmatter.StatusPrivate {
		// Private items are never propagated to the target tree.
		d.logger.Debug("skipping private item", "key", key.String())
		return
	}

	targetPath := filepath.Join(d.cfg.PostsDir(), key.TargetName())
	if status == frontmatter.StatusDraft {
		targetPath = filepath.Join(d.cfg.DraftsDir(), key.TargetName())
	}

	plan.Changes = append(plan.Changes, Change{
		Kind:       ChangeCreate,
		Direction:  resolve.SourceWins,
		Key:        key,
		SourcePath: p.sourcePath,
		TargetPath: targetPath,
		Status:     status,
	})
}

// classifyTargetOnly handles items present only in the target tree. A
// synced marker on the target copy means the source file existed at some
// point and was intentionally removed, so the target copy follows it;
// without the marker the item was authored target-side and is carried back
// into the source tree.
func (d *Detector) classifyTargetOnly(key item.Key, p *pairing, plan *Plan) {
	doc, ok := d.load(p.targetPath, plan)
	if !ok {
		return
	}

	if _, synced := doc.Synced(); synced {
		plan.Changes = append(plan.Changes, Change{
			Kind:       ChangeDelete,
			Direction:  resolve.SourceWins,
			Key:        key,
			TargetPath: p.targetPath,
			Status:     doc.Status(),
		})
		return
	}

	plan.Changes = append(plan.Changes, Change{
		Kind:       ChangeCreate,
		Direction:  resolve.TargetWins,
		Key:        key,
		SourcePath: filepath.Join(d.cfg.ItemsDir(), key.SourceRel()),
		TargetPath: p.targetPath,
		Status:     doc.Status(),
	})
}

// classifyBoth compares a dual-present item and delegates to the resolver
// when either hash differs.
func (d *Detector) classifyBoth(key item.Key, p *pairing, plan *Plan) {
	srcDoc, ok := d.load(p.sourcePath, plan)
	if !ok {
		return
	}
	tgtDoc, ok := d.load(p.targetPath, plan)
	if !ok {
		return
	}

	if srcDoc.Status() == frontmatter.StatusPrivate {
		// The item went private after being published; propagating any side
		// would leak it, so it is left alone and reported.
		d.logger.Warn("item is private in source but still present in target, not touching either copy",
			"key", key.String(), "target", p.targetPath)
		return
	}

	contentDiffers := srcDoc.ContentHash() != tgtDoc.ContentHash()
	metadataDiffers := srcDoc.MetadataHash() != tgtDoc.MetadataHash()
	if !contentDiffers && !metadataDiffers {
		return
	}

	srcMod, srcErr := d.modTime(p.sourcePath)
	tgtMod, tgtErr := d.modTime(p.targetPath)
	if srcErr != nil || tgtErr != nil {
		// Comparison errors never crash the run; equal timestamps push the
		// tie-break toward the source tree.
		srcMod, tgtMod = time.Time{}, time.Time{}
	}

	ci := &resolve.ConflictInfo{
		Key:               key,
		SourcePath:        p.sourcePath,
		TargetPath:        p.targetPath,
		SourceModTime:     srcMod,
		TargetModTime:     tgtMod,
		SourceContentHash: srcDoc.ContentHash(),
		TargetContentHash: tgtDoc.ContentHash(),
		SourceMetaHash:    srcDoc.MetadataHash(),
		TargetMetaHash:    tgtDoc.MetadataHash(),
		ContentDiffers:    contentDiffers,
		MetadataDiffers:   metadataDiffers,
	}
	direction := d.resolver.Resolve(ci)
	plan.Conflicts = append(plan.Conflicts, ci)

	status := srcDoc.Status()
	if direction == resolve.TargetWins {
		status = tgtDoc.Status()
	}

	plan.Changes = append(plan.Changes, Change{
		Kind:       ChangeUpdate,
		Direction:  direction,
		Key:        key,
		SourcePath: p.sourcePath,
		TargetPath: p.targetPath,
		Status:     status,
		Conflict:   ci,
	})
}

// load parses an item once per detection pass, caching by path. Malformed
// items are logged, recorded as skipped, and excluded from the run.
func (d *Detector) load(path string, plan *Plan) (*frontmatter.Doc, bool) {
	if doc, ok := plan.Docs[path]; ok {
		return doc, true
	}

	doc, err := d.fm.Load(path)
	if err != nil {
		d.logger.Warn("skipping unreadable item", "path", path, "error", err)
		plan.Skipped = append(plan.Skipped, path)
		return nil, false
	}

	plan.Docs[path] = doc
	return doc, true
}

// modTime reads a file's modification timestamp.
func (d *Detector) modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		d.logger.Warn("failed to stat item during comparison", "path", path, "error", err)
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func ensurePair(pairs map[item.Key]*pairing, key item.Key) *pairing {
	p, ok := pairs[key]
	if !ok {
		p = &pairing{}
		pairs[key] = p
	}
	return p
}
