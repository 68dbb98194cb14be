package frontmatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// volatileKeys are sync bookkeeping fields excluded from metadata hashing.
// Without the exclusion every sync run would flag the drift it just wrote.
var volatileKeys = map[string]bool{
	SyncedKey: true,
	"updated": true,
}

// ContentHash returns the xxh3-128 hex digest of the body.
func (d *Doc) ContentHash() string {
	return hashBytes([]byte(d.Body))
}

// MetadataHash returns a digest of the metadata that is stable across key
// reordering and ignores volatile bookkeeping keys. Each key/value pair is
// rendered, the lines are sorted, and the result hashed.
func (d *Doc) MetadataHash() string {
	if d.meta == nil {
		return hashBytes(nil)
	}

	lines := make([]string, 0, len(d.meta.Content)/2)
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		key := d.meta.Content[i].Value
		if volatileKeys[key] {
			continue
		}
		rendered, err := yaml.Marshal(d.meta.Content[i+1])
		if err != nil {
			// A node that came from the parser always re-marshals; keep a
			// stable placeholder rather than failing the hash.
			rendered = []byte("!err")
		}
		lines = append(lines, key+": "+string(rendered))
	}
	sort.Strings(lines)

	return hashBytes([]byte(strings.Join(lines, "\n")))
}

func hashBytes(data []byte) string {
	return fmt.Sprintf("%x", xxh3.Hash128(data).Bytes())
}
