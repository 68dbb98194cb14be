// Package testutil provides helpers for building content trees in tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sheide/contentsync/internal/config"
)

// NewConfig builds a two-tree config rooted in a fresh temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	return &config.Config{
		Source: config.SourceConfig{
			Root:               filepath.Join(tmpDir, "vault"),
			Subpath:            "items",
			AttachmentsSubpath: "attachments",
		},
		Target: config.TargetConfig{
			Root:          filepath.Join(tmpDir, "site"),
			PostsSubpath:  "_posts",
			DraftsSubpath: "_drafts",
			AssetsSubpath: "assets",
		},
		Sync:   config.SyncConfig{Direction: config.DirectionBoth},
		Backup: config.BackupConfig{RetentionCount: 5},
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Item renders a frontmatter document from key/value pairs and a body.
func Item(body string, fields ...string) []byte {
	if len(fields)%2 != 0 {
		panic("testutil.Item: fields must be key/value pairs")
	}
	var b strings.Builder
	b.WriteString("---\n")
	for i := 0; i < len(fields); i += 2 {
		fmt.Fprintf(&b, "%s: %s\n", fields[i], fields[i+1])
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// SourceItem writes an item into the source tree at rel (e.g.
// "2024/01/15/hello.md") and returns its absolute path.
func SourceItem(t *testing.T, cfg *config.Config, rel string, content []byte) string {
	t.Helper()
	path := filepath.Join(cfg.ItemsDir(), rel)
	WriteFile(t, path, content)
	return path
}

// TargetPost writes a post into the target posts directory and returns its
// absolute path.
func TargetPost(t *testing.T, cfg *config.Config, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(cfg.PostsDir(), name)
	WriteFile(t, path, content)
	return path
}

// ReadFile reads path, failing the test on error.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
