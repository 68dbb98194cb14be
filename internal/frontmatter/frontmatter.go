// Package frontmatter reads and writes items as a YAML frontmatter block
// followed by a markdown body. The frontmatter is kept as an ordered mapping
// so a read-write round trip preserves every key the caller did not touch,
// including author-added fields this package knows nothing about.
package frontmatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// SyncedKey is the bookkeeping key written after a successful sync. It is
// excluded from metadata hashing so the marker itself never reads as drift.
const SyncedKey = "synced"

// Status is the visibility of an item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusPrivate   Status = "private"
)

// ParseError indicates a malformed frontmatter block. Per-item validation
// failure: callers log and skip the item rather than aborting the run.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed frontmatter: %v", e.Err)
	}
	return fmt.Sprintf("malformed frontmatter in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Doc is a parsed item: an ordered metadata mapping plus the raw body.
type Doc struct {
	meta *yaml.Node // mapping node; nil when the file had no frontmatter
	Body string
}

// Handler loads items from disk. The sync core consumes this interface so
// tests can substitute fixtures or failures.
type Handler interface {
	Load(path string) (*Doc, error)
}

// DiskHandler is the default Handler reading from the local filesystem.
type DiskHandler struct{}

// Load reads and parses the item at path. I/O failures are returned as
// wrapped errors; malformed frontmatter surfaces as *ParseError.
func (DiskHandler) Load(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read item %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
			return nil, pe
		}
		return nil, err
	}
	return doc, nil
}

// Parse splits data into frontmatter and body. A file without a leading
// "---" fence is a body-only document with empty metadata.
func Parse(data []byte) (*Doc, error) {
	text := string(data)

	if !strings.HasPrefix(text, delimiter+"\n") {
		return &Doc{Body: text}, nil
	}

	rest := text[len(delimiter)+1:]
	// The closing fence is a line that is exactly "---"; metadata lines
	// merely starting with dashes belong to the block. The padded search
	// also catches a fence on the first line (empty block) and at EOF.
	search := "\n" + rest
	end := strings.Index(search, "\n"+delimiter+"\n")
	if end < 0 {
		if strings.HasSuffix(search, "\n"+delimiter) {
			end = len(search) - len(delimiter) - 1
		} else {
			return nil, &ParseError{Err: fmt.Errorf("unterminated frontmatter block")}
		}
	}

	block := search[1 : end+1]
	body := search[end+1+len(delimiter):]
	// Drop the closing fence's line terminator plus the conventional blank
	// separator line; Encode writes them back.
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, &ParseError{Err: err}
	}

	if len(root.Content) == 0 {
		return &Doc{Body: body}, nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("frontmatter is not a mapping")}
	}

	return &Doc{meta: mapping, Body: body}, nil
}

// Encode renders the document back to bytes. Metadata keys come out in
// their original order, with any keys set during this run appended.
func (d *Doc) Encode() ([]byte, error) {
	if d.meta == nil || len(d.meta.Content) == 0 {
		return []byte(d.Body), nil
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.meta); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	buf.WriteString(delimiter + "\n")
	if d.Body != "" {
		buf.WriteString("\n" + d.Body)
	}
	return buf.Bytes(), nil
}

// valueNode returns the value node for key, or nil.
func (d *Doc) valueNode(key string) *yaml.Node {
	if d.meta == nil {
		return nil
	}
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		if d.meta.Content[i].Value == key {
			return d.meta.Content[i+1]
		}
	}
	return nil
}

// Get returns the scalar value for key.
func (d *Doc) Get(key string) (string, bool) {
	v := d.valueNode(key)
	if v == nil || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

// List returns the value for key as a string slice. A scalar value is
// treated as a one-element list.
func (d *Doc) List(key string) []string {
	v := d.valueNode(key)
	if v == nil {
		return nil
	}
	switch v.Kind {
	case yaml.ScalarNode:
		if v.Value == "" {
			return nil
		}
		return []string{v.Value}
	case yaml.SequenceNode:
		out := make([]string, 0, len(v.Content))
		for _, n := range v.Content {
			if n.Kind == yaml.ScalarNode {
				out = append(out, n.Value)
			}
		}
		return out
	}
	return nil
}

// Set stores a scalar value for key, replacing an existing entry in place
// or appending a new one at the end of the mapping.
func (d *Doc) Set(key, value string) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}

	if existing := d.valueNode(key); existing != nil {
		*existing = *node
		return
	}

	if d.meta == nil {
		d.meta = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	d.meta.Content = append(d.meta.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		node,
	)
}

// Delete removes key from the mapping if present.
func (d *Doc) Delete(key string) {
	if d.meta == nil {
		return
	}
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		if d.meta.Content[i].Value == key {
			d.meta.Content = append(d.meta.Content[:i], d.meta.Content[i+2:]...)
			return
		}
	}
}

// Keys returns the metadata keys in document order.
func (d *Doc) Keys() []string {
	if d.meta == nil {
		return nil
	}
	keys := make([]string, 0, len(d.meta.Content)/2)
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		keys = append(keys, d.meta.Content[i].Value)
	}
	return keys
}

// Title returns the item title, empty when absent.
func (d *Doc) Title() string {
	v, _ := d.Get("title")
	return v
}

// Tags returns the item tags.
func (d *Doc) Tags() []string {
	return d.List("tags")
}

// Image returns the item's cover image reference, empty when absent.
func (d *Doc) Image() string {
	v, _ := d.Get("image")
	return v
}

// Status derives the item visibility from the "status" key. Absent or
// unrecognized values read as Published.
func (d *Doc) Status() Status {
	v, ok := d.Get("status")
	if !ok {
		return StatusPublished
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(StatusDraft):
		return StatusDraft
	case string(StatusPrivate):
		return StatusPrivate
	default:
		return StatusPublished
	}
}

// Synced returns the synced-marker timestamp, if one is recorded.
func (d *Doc) Synced() (time.Time, bool) {
	v, ok := d.Get(SyncedKey)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetSynced records the synced marker.
func (d *Doc) SetSynced(t time.Time) {
	d.Set(SyncedKey, t.UTC().Format(time.RFC3339))
}
