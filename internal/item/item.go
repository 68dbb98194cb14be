// Package item defines canonical keys and path mapping between the
// date-partitioned source tree and the flat, slug-named target tree.
package item

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MarkdownExt is the only file extension recognized as a content item.
const MarkdownExt = ".md"

// Key identifies the same logical item across both trees. It is derived
// deterministically from the date partition and the normalized slug.
type Key struct {
	Date string // YYYY-MM-DD
	Slug string
}

// String returns the canonical form of the key, e.g. "2024-01-15/hello".
func (k Key) String() string {
	return k.Date + "/" + k.Slug
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Date == "" && k.Slug == ""
}

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9-]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)

	// source layout: YYYY/MM/DD/<slug>.md
	sourceRelPattern = regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})/([^/]+)\.md$`)

	// target layout: YYYY-MM-DD-<slug>.md
	targetNamePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})-(.+)\.md$`)
)

// NormalizeSlug lowercases a raw slug and reduces it to hyphen-separated
// alphanumeric runs. The result is stable across repeated calls.
func NormalizeSlug(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ParseSourcePath derives the canonical key from a source item path.
// baseDir is the items root; the remainder must match YYYY/MM/DD/<slug>.md
// with a real calendar date. Paths that do not map to a valid date partition
// are rejected, never guessed.
func ParseSourcePath(baseDir, path string) (Key, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return Key{}, fmt.Errorf("path %s is not under %s: %w", path, baseDir, err)
	}
	rel = filepath.ToSlash(rel)

	m := sourceRelPattern.FindStringSubmatch(rel)
	if m == nil {
		return Key{}, fmt.Errorf("source path %s does not match YYYY/MM/DD/<slug>.md", rel)
	}

	date := m[1] + "-" + m[2] + "-" + m[3]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Key{}, fmt.Errorf("source path %s has invalid date partition %s", rel, date)
	}

	slug := NormalizeSlug(m[4])
	if slug == "" {
		return Key{}, fmt.Errorf("source path %s has an empty slug", rel)
	}

	return Key{Date: date, Slug: slug}, nil
}

// ParseTargetName derives the canonical key from a target file name
// (YYYY-MM-DD-<slug>.md). The path may include directories; only the base
// name is considered.
func ParseTargetName(path string) (Key, error) {
	base := filepath.Base(path)

	m := targetNamePattern.FindStringSubmatch(base)
	if m == nil {
		return Key{}, fmt.Errorf("target name %s does not match YYYY-MM-DD-<slug>.md", base)
	}

	date := m[1] + "-" + m[2] + "-" + m[3]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Key{}, fmt.Errorf("target name %s has invalid date %s", base, date)
	}

	slug := NormalizeSlug(m[4])
	if slug == "" {
		return Key{}, fmt.Errorf("target name %s has an empty slug", base)
	}

	return Key{Date: date, Slug: slug}, nil
}

// SourceRel returns the item's path relative to the items root,
// e.g. "2024/01/15/hello.md".
func (k Key) SourceRel() string {
	return filepath.Join(strings.ReplaceAll(k.Date, "-", string(filepath.Separator)), k.Slug+MarkdownExt)
}

// TargetName returns the item's file name in the target tree,
// e.g. "2024-01-15-hello.md".
func (k Key) TargetName() string {
	return k.Date + "-" + k.Slug + MarkdownExt
}

// DatePartition returns the date split into its partition segments,
// e.g. "2024/01/15". Used for media asset paths sharing the item's partition.
func (k Key) DatePartition() string {
	return strings.ReplaceAll(k.Date, "-", "/")
}
