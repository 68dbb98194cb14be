package item

import (
	"os"
	"path/filepath"
	"strings"
)

// DiscoverMarkdown finds all markdown files under dir. Hidden files and
// directories (names starting with ".") are skipped, which keeps backup
// directories and editor droppings out of the scan. A missing dir is not
// an error; it yields an empty result.
func DiscoverMarkdown(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if path != dir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() && filepath.Ext(path) == MarkdownExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
