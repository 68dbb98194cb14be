// Package media locates image and attachment references inside item bodies
// and maps them into the target assets area. Processing is opaque to the
// sync core; the default handler passes bytes through unchanged.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sheide/contentsync/internal/item"
)

// ErrNotFound reports a reference that resolves to no file on disk.
var ErrNotFound = errors.New("referenced media file not found")

// Handler is the narrow interface the sync core consumes. Process returns
// the publishable bytes rather than writing them, so every media mutation
// goes through the same atomic, backed-up write path as content does.
type Handler interface {
	// FindReferences extracts media reference strings from a markdown body.
	FindReferences(body string) []string
	// Resolve maps a reference to an absolute source path. itemDir is the
	// directory of the referencing item, tried before the attachments root.
	Resolve(ref, itemDir string) (string, error)
	// TargetPath computes the deterministic target location for a source
	// media file, sharing the referencing item's date partition.
	TargetPath(sourcePath string, key item.Key) string
	// Process produces the bytes to publish for a media file.
	Process(sourcePath string) ([]byte, error)
}

var (
	// ![alt](path) — URLs are not local references and are ignored.
	markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)
	// ![[name.png]] wiki-style embeds.
	wikiEmbed = regexp.MustCompile(`!\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)
)

// DiskHandler resolves references against the local source tree.
type DiskHandler struct {
	// AttachmentsDir is the fallback lookup root for bare references.
	AttachmentsDir string
	// AssetsDir is the target assets root.
	AssetsDir string
}

// NewDiskHandler creates the default handler.
func NewDiskHandler(attachmentsDir, assetsDir string) *DiskHandler {
	return &DiskHandler{AttachmentsDir: attachmentsDir, AssetsDir: assetsDir}
}

// FindReferences returns the unique local media references in body, in
// order of first appearance.
func (h *DiskHandler) FindReferences(body string) []string {
	seen := make(map[string]bool)
	var refs []string

	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || seen[ref] {
			return
		}
		if strings.Contains(ref, "://") {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}

	for _, m := range markdownImage.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	for _, m := range wikiEmbed.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return refs
}

// Resolve looks the reference up relative to the item's directory first,
// then under the attachments root.
func (h *DiskHandler) Resolve(ref, itemDir string) (string, error) {
	candidates := []string{
		filepath.Join(itemDir, filepath.FromSlash(ref)),
	}
	if h.AttachmentsDir != "" {
		candidates = append(candidates,
			filepath.Join(h.AttachmentsDir, filepath.FromSlash(ref)),
			filepath.Join(h.AttachmentsDir, filepath.Base(filepath.FromSlash(ref))),
		)
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// TargetPath places the asset under the assets root in the item's date
// partition, e.g. assets/2024/01/15/diagram.png. The same source path
// always maps to the same target path.
func (h *DiskHandler) TargetPath(sourcePath string, key item.Key) string {
	return filepath.Join(h.AssetsDir, filepath.FromSlash(key.DatePartition()), filepath.Base(sourcePath))
}

// Process reads the file unchanged. Resizing or re-encoding would slot in
// here without the core noticing.
func (h *DiskHandler) Process(sourcePath string) ([]byte, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to process media %s: %w", sourcePath, err)
	}
	return data, nil
}
