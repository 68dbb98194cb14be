package item

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"Hello World", "hello-world"},
		{"under_scored_name", "under-scored-name"},
		{"  padded  ", "padded"},
		{"Émoji & Symbols!", "moji-symbols"},
		{"double--hyphen", "double-hyphen"},
		{"-leading-trailing-", "leading-trailing"},
	}

	for _, tt := range tests {
		if got := NormalizeSlug(tt.in); got != tt.want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSourcePath(t *testing.T) {
	base := filepath.Join("/vault", "items")

	key, err := ParseSourcePath(base, filepath.Join(base, "2024", "01", "15", "hello.md"))
	if err != nil {
		t.Fatal(err)
	}
	if key.Date != "2024-01-15" || key.Slug != "hello" {
		t.Errorf("unexpected key: %+v", key)
	}
}

func TestParseSourcePath_Invalid(t *testing.T) {
	base := filepath.Join("/vault", "items")

	invalid := []string{
		filepath.Join(base, "hello.md"),                       // no date partition
		filepath.Join(base, "2024", "01", "hello.md"),         // partial partition
		filepath.Join(base, "2024", "13", "40", "hello.md"),   // impossible date
		filepath.Join(base, "2024", "01", "15", "hello.txt"),  // wrong extension
		filepath.Join(base, "notes", "2024", "x", "hello.md"), // extra segment
	}

	for _, path := range invalid {
		if _, err := ParseSourcePath(base, path); err == nil {
			t.Errorf("ParseSourcePath(%s) should fail", path)
		}
	}
}

func TestParseTargetName(t *testing.T) {
	key, err := ParseTargetName("/site/_posts/2024-01-15-hello-world.md")
	if err != nil {
		t.Fatal(err)
	}
	if key.Date != "2024-01-15" || key.Slug != "hello-world" {
		t.Errorf("unexpected key: %+v", key)
	}

	if _, err := ParseTargetName("/site/_posts/hello.md"); err == nil {
		t.Error("undated target name should fail")
	}
	if _, err := ParseTargetName("/site/_posts/2024-02-30-hello.md"); err == nil {
		t.Error("impossible date should fail")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	// The same source path must always map to the same target path.
	base := "/vault/items"
	src := filepath.Join(base, "2024", "01", "15", "hello.md")

	k1, err := ParseSourcePath(base, src)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := ParseTargetName(k1.TargetName())
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("key mismatch after round trip: %+v != %+v", k1, k2)
	}
	if k1.SourceRel() != filepath.Join("2024", "01", "15", "hello.md") {
		t.Errorf("unexpected source rel: %s", k1.SourceRel())
	}
	if k1.TargetName() != "2024-01-15-hello.md" {
		t.Errorf("unexpected target name: %s", k1.TargetName())
	}
}

func TestDiscoverMarkdown(t *testing.T) {
	dir := t.TempDir()

	mustWrite := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("2024/01/15/hello.md", "hi")
	mustWrite("2024/01/15/image.png", "binary")
	mustWrite(".backups/batch_1/old.md", "hidden")
	mustWrite(".hidden.md", "hidden")

	files, err := DiscoverMarkdown(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(files) != 1 {
		t.Fatalf("expected 1 markdown file, got %d: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "hello.md" {
		t.Errorf("unexpected file: %s", files[0])
	}
}

func TestDiscoverMarkdown_MissingDir(t *testing.T) {
	files, err := DiscoverMarkdown(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}
