// Package config loads and validates the contentsync configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Direction filters which way changes may flow during a sync run.
type Direction string

const (
	DirectionBoth           Direction = "both"
	DirectionSourceToTarget Direction = "source-to-target"
	DirectionTargetToSource Direction = "target-to-source"
)

// Config represents the complete contentsync configuration.
type Config struct {
	Source SourceConfig `yaml:"source"`
	Target TargetConfig `yaml:"target"`
	Sync   SyncConfig   `yaml:"sync"`
	Backup BackupConfig `yaml:"backup"`
	Watch  WatchConfig  `yaml:"watch"`
}

// SourceConfig locates the date-partitioned authoring tree.
type SourceConfig struct {
	Root string `yaml:"root"`
	// Subpath is the items area under the root.
	Subpath string `yaml:"subpath"`
	// AttachmentsSubpath is the fallback lookup area for media references.
	AttachmentsSubpath string `yaml:"attachments_subpath"`
}

// TargetConfig locates the flat, slug-named publishable tree.
type TargetConfig struct {
	Root          string `yaml:"root"`
	PostsSubpath  string `yaml:"posts_subpath"`
	DraftsSubpath string `yaml:"drafts_subpath"`
	AssetsSubpath string `yaml:"assets_subpath"`
}

// SyncConfig configures sync behavior.
type SyncConfig struct {
	Direction       Direction `yaml:"direction"`
	ContinueOnError bool      `yaml:"continue_on_error"`
	DryRun          bool      `yaml:"dry_run"`
}

// BackupConfig configures pre-mutation snapshots.
type BackupConfig struct {
	// RetentionCount is how many most-recent batch snapshots to keep.
	RetentionCount int `yaml:"retention_count"`
}

// WatchConfig configures the continuous watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields.
func (c *Config) expandEnv() {
	c.Source.Root = os.ExpandEnv(c.Source.Root)
	c.Source.Subpath = os.ExpandEnv(c.Source.Subpath)
	c.Source.AttachmentsSubpath = os.ExpandEnv(c.Source.AttachmentsSubpath)
	c.Target.Root = os.ExpandEnv(c.Target.Root)
	c.Target.PostsSubpath = os.ExpandEnv(c.Target.PostsSubpath)
	c.Target.DraftsSubpath = os.ExpandEnv(c.Target.DraftsSubpath)
	c.Target.AssetsSubpath = os.ExpandEnv(c.Target.AssetsSubpath)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source.Subpath == "" {
		c.Source.Subpath = "items"
	}
	if c.Source.AttachmentsSubpath == "" {
		c.Source.AttachmentsSubpath = "attachments"
	}
	if c.Target.PostsSubpath == "" {
		c.Target.PostsSubpath = "_posts"
	}
	if c.Target.DraftsSubpath == "" {
		c.Target.DraftsSubpath = "_drafts"
	}
	if c.Target.AssetsSubpath == "" {
		c.Target.AssetsSubpath = "assets"
	}
	if c.Sync.Direction == "" {
		c.Sync.Direction = DirectionBoth
	}
	if c.Backup.RetentionCount == 0 {
		c.Backup.RetentionCount = 5
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 2 * time.Second
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Source.Root == "" {
		return fmt.Errorf("source.root is required")
	}
	if c.Target.Root == "" {
		return fmt.Errorf("target.root is required")
	}

	if !filepath.IsAbs(c.Source.Root) {
		return fmt.Errorf("source.root must be an absolute path: %s", c.Source.Root)
	}
	if !filepath.IsAbs(c.Target.Root) {
		return fmt.Errorf("target.root must be an absolute path: %s", c.Target.Root)
	}
	if c.Source.Root == c.Target.Root {
		return fmt.Errorf("source.root and target.root must differ")
	}

	switch c.Sync.Direction {
	case DirectionBoth, DirectionSourceToTarget, DirectionTargetToSource:
		// valid
	default:
		return fmt.Errorf("invalid sync.direction: %s (must be both, source-to-target, or target-to-source)", c.Sync.Direction)
	}

	if c.Backup.RetentionCount < 1 {
		return fmt.Errorf("backup.retention_count must be at least 1")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	return nil
}

// ItemsDir returns the source items root.
func (c *Config) ItemsDir() string {
	return filepath.Join(c.Source.Root, c.Source.Subpath)
}

// AttachmentsDir returns the source media fallback root.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Source.Root, c.Source.AttachmentsSubpath)
}

// PostsDir returns the target published-posts directory.
func (c *Config) PostsDir() string {
	return filepath.Join(c.Target.Root, c.Target.PostsSubpath)
}

// DraftsDir returns the target drafts directory.
func (c *Config) DraftsDir() string {
	return filepath.Join(c.Target.Root, c.Target.DraftsSubpath)
}

// AssetsDir returns the target media store directory.
func (c *Config) AssetsDir() string {
	return filepath.Join(c.Target.Root, c.Target.AssetsSubpath)
}

// BackupDir returns the backup store root.
func (c *Config) BackupDir() string {
	return filepath.Join(c.Target.Root, ".backups")
}
