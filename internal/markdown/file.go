package markdown

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// IsMarkdownFile reports whether the filename carries a markdown extension.
// Imports of other file types are rejected before any parse attempt.
func IsMarkdownFile(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// ExportFilename builds a file name from a note title: characters that are
// illegal in file names are replaced by underscores and a .md extension is
// appended when missing.
func ExportFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		return r
	}, title)
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	return name
}

// ReadFile reads a markdown file's full text as UTF-8. Non-markdown
// extensions are rejected without reading.
func ReadFile(path string) (string, error) {
	if !IsMarkdownFile(path) {
		return "", fmt.Errorf("markdown: not a markdown file: %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("markdown: read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile atomically writes an exported document into dir under a name
// derived from the note title and returns the full path.
func WriteFile(dir, title, document string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("markdown: mkdir export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(title))
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(document))); err != nil {
		return "", fmt.Errorf("markdown: write %s: %w", path, err)
	}
	return path, nil
}
