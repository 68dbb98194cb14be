package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
source:
  root: /vault
target:
  root: /site
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Source.Subpath != "items" {
		t.Errorf("source.subpath default = %q", cfg.Source.Subpath)
	}
	if cfg.Target.PostsSubpath != "_posts" {
		t.Errorf("target.posts_subpath default = %q", cfg.Target.PostsSubpath)
	}
	if cfg.Target.DraftsSubpath != "_drafts" {
		t.Errorf("target.drafts_subpath default = %q", cfg.Target.DraftsSubpath)
	}
	if cfg.Target.AssetsSubpath != "assets" {
		t.Errorf("target.assets_subpath default = %q", cfg.Target.AssetsSubpath)
	}
	if cfg.Sync.Direction != DirectionBoth {
		t.Errorf("sync.direction default = %q", cfg.Sync.Direction)
	}
	if cfg.Backup.RetentionCount != 5 {
		t.Errorf("backup.retention_count default = %d", cfg.Backup.RetentionCount)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("watch.debounce default = %v", cfg.Watch.Debounce)
	}
	if cfg.Sync.ContinueOnError {
		t.Error("continue_on_error must default to false")
	}
	if cfg.Sync.DryRun {
		t.Error("dry_run must default to false")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
source:
  root: /vault
  subpath: notes
  attachments_subpath: files
target:
  root: /site
  posts_subpath: posts
  drafts_subpath: drafts
  assets_subpath: static
sync:
  direction: source-to-target
  continue_on_error: true
  dry_run: true
backup:
  retention_count: 10
watch:
  debounce: 5s
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ItemsDir() != filepath.Join("/vault", "notes") {
		t.Errorf("ItemsDir = %s", cfg.ItemsDir())
	}
	if cfg.PostsDir() != filepath.Join("/site", "posts") {
		t.Errorf("PostsDir = %s", cfg.PostsDir())
	}
	if cfg.DraftsDir() != filepath.Join("/site", "drafts") {
		t.Errorf("DraftsDir = %s", cfg.DraftsDir())
	}
	if cfg.AssetsDir() != filepath.Join("/site", "static") {
		t.Errorf("AssetsDir = %s", cfg.AssetsDir())
	}
	if cfg.BackupDir() != filepath.Join("/site", ".backups") {
		t.Errorf("BackupDir = %s", cfg.BackupDir())
	}
	if cfg.Sync.Direction != DirectionSourceToTarget {
		t.Errorf("direction = %s", cfg.Sync.Direction)
	}
	if !cfg.Sync.ContinueOnError || !cfg.Sync.DryRun {
		t.Error("sync booleans not parsed")
	}
	if cfg.Backup.RetentionCount != 10 {
		t.Errorf("retention = %d", cfg.Backup.RetentionCount)
	}
	if cfg.Watch.Debounce != 5*time.Second {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CONTENTSYNC_TEST_ROOT", "/vault")

	cfg, err := Load(writeConfig(t, `
source:
  root: $CONTENTSYNC_TEST_ROOT
target:
  root: /site
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Root != "/vault" {
		t.Errorf("source.root = %q", cfg.Source.Root)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing source root",
			content: "target:\n  root: /site\n",
			wantErr: "source.root is required",
		},
		{
			name:    "missing target root",
			content: "source:\n  root: /vault\n",
			wantErr: "target.root is required",
		},
		{
			name:    "relative source root",
			content: "source:\n  root: vault\ntarget:\n  root: /site\n",
			wantErr: "absolute",
		},
		{
			name:    "identical roots",
			content: "source:\n  root: /same\ntarget:\n  root: /same\n",
			wantErr: "must differ",
		},
		{
			name:    "bad direction",
			content: validConfig + "sync:\n  direction: sideways\n",
			wantErr: "invalid sync.direction",
		},
		{
			name:    "bad retention",
			content: validConfig + "backup:\n  retention_count: -2\n",
			wantErr: "retention_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing config file must error")
	}
}
