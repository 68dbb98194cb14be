// Package resolve decides which side wins when an item was edited in both
// trees. Resolution always selects one side wholesale; there is no
// line-level merging.
package resolve

import (
	"log/slog"
	"time"

	"github.com/sheide/contentsync/internal/item"
)

// Direction is the winning side of a resolution, read as "copy from the
// named side".
type Direction int

const (
	// SourceWins propagates the source tree's copy to the target tree.
	SourceWins Direction = iota
	// TargetWins propagates the target tree's copy to the source tree.
	TargetWins
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case SourceWins:
		return "source-to-target"
	case TargetWins:
		return "target-to-source"
	default:
		return "unknown"
	}
}

// ConflictInfo describes a dual-present item where at least one hash
// differs between the sides.
type ConflictInfo struct {
	Key        item.Key
	SourcePath string
	TargetPath string

	SourceModTime time.Time
	TargetModTime time.Time

	SourceContentHash string
	TargetContentHash string
	SourceMetaHash    string
	TargetMetaHash    string

	ContentDiffers  bool
	MetadataDiffers bool

	// Resolution and Reason are filled in by Resolve.
	Resolution Direction
	Reason     string
}

// Resolver applies the conflict policy.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve picks the winning direction, in priority order:
//
//  1. Metadata-only difference: the source tree is authoritative for
//     structured fields, regardless of timestamps. Target-side tooling must
//     not silently overwrite authorial intent.
//  2. Content difference: the side with the later modification timestamp.
//  3. Equal timestamps: the source tree, deterministically, so repeated
//     runs never oscillate.
//
// The decision is recorded on the ConflictInfo and returned.
func (r *Resolver) Resolve(ci *ConflictInfo) Direction {
	switch {
	case !ci.ContentDiffers && ci.MetadataDiffers:
		ci.Resolution = SourceWins
		ci.Reason = "metadata-only difference, source tree is authoritative"

	case ci.TargetModTime.After(ci.SourceModTime):
		ci.Resolution = TargetWins
		ci.Reason = "target copy is newer"

	case ci.SourceModTime.After(ci.TargetModTime):
		ci.Resolution = SourceWins
		ci.Reason = "source copy is newer"

	default:
		ci.Resolution = SourceWins
		ci.Reason = "equal modification times, source tree breaks the tie"
	}

	r.logger.Debug("resolved conflict",
		"key", ci.Key.String(),
		"direction", ci.Resolution.String(),
		"reason", ci.Reason,
		"content_differs", ci.ContentDiffers,
		"metadata_differs", ci.MetadataDiffers)

	return ci.Resolution
}
