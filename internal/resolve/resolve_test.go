package resolve

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sheide/contentsync/internal/item"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func conflict(srcMod, tgtMod time.Time, content, metadata bool) *ConflictInfo {
	return &ConflictInfo{
		Key:             item.Key{Date: "2024-01-15", Slug: "hello"},
		SourceModTime:   srcMod,
		TargetModTime:   tgtMod,
		ContentDiffers:  content,
		MetadataDiffers: metadata,
	}
}

func TestResolve_MetadataOnlyAlwaysSourceWins(t *testing.T) {
	r := NewResolver(testLogger())
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	// Source-wins must hold regardless of which timestamp is newer.
	cases := []struct {
		srcMod time.Time
		tgtMod time.Time
	}{
		{base, base.Add(time.Hour)},  // target newer
		{base.Add(time.Hour), base},  // source newer
		{base, base},                 // tie
	}

	for _, tc := range cases {
		ci := conflict(tc.srcMod, tc.tgtMod, false, true)
		if got := r.Resolve(ci); got != SourceWins {
			t.Errorf("metadata-only conflict (src=%v tgt=%v) resolved %s, want source-to-target",
				tc.srcMod, tc.tgtMod, got)
		}
		if ci.Resolution != SourceWins {
			t.Error("resolution not recorded on ConflictInfo")
		}
	}
}

func TestResolve_ContentNewerSideWins(t *testing.T) {
	r := NewResolver(testLogger())
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	ci := conflict(base.Add(time.Hour), base, true, false)
	if got := r.Resolve(ci); got != SourceWins {
		t.Errorf("newer source resolved %s", got)
	}

	ci = conflict(base, base.Add(time.Hour), true, true)
	if got := r.Resolve(ci); got != TargetWins {
		t.Errorf("newer target resolved %s", got)
	}
}

func TestResolve_TimestampTieSourceWins(t *testing.T) {
	r := NewResolver(testLogger())
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	ci := conflict(base, base, true, false)
	if got := r.Resolve(ci); got != SourceWins {
		t.Errorf("tie resolved %s, want source-to-target", got)
	}
	if ci.Reason == "" {
		t.Error("reason not recorded")
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(testLogger())
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		ci := conflict(base, base.Add(time.Hour), false, true)
		if got := r.Resolve(ci); got != SourceWins {
			t.Fatalf("run %d resolved %s, determinism broken", i, got)
		}
	}
}
