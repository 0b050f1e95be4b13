// Package markdown converts notes to and from Markdown documents with a
// YAML front-matter header.
package markdown

import (
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontMatterRe matches a front-matter block anchored at the start of the
// document: an opening --- line, a YAML body, and a closing --- line
// (optionally followed by a newline).
var frontMatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---(?:\r?\n|\z)`)

// Document is the result of parsing a Markdown document. When Valid is
// false, Content carries the text the caller should fall back to (the whole
// input when no front matter was found, the body when the front matter
// parsed but lacked a usable title).
type Document struct {
	Valid   bool
	Title   string
	Tags    []string
	Content string
}

type frontMatter struct {
	Title      string   `yaml:"title"`
	Tags       []string `yaml:"tags"`
	ExportedAt string   `yaml:"exportedAt"`
}

// Export renders a note as a Markdown document with a YAML front-matter
// header. The content is appended verbatim after the closing delimiter.
// The exportedAt field is informational only and is ignored on import.
func Export(title string, tags []string, content string) string {
	if tags == nil {
		tags = []string{}
	}
	fm := frontMatter{
		Title:      title,
		Tags:       tags,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	}
	out, _ := yaml.Marshal(fm)

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n")
	b.WriteString(content)
	return b.String()
}

// Parse extracts a note's fields from a Markdown document.
//
// A document is valid only when a leading front-matter block parses as YAML
// and carries a non-blank title. Tags are accepted either as a sequence of
// strings (non-string entries dropped) or as a single comma-separated
// string. Invalid or absent front matter is not an error: the caller
// decides what to do with the fallback content.
func Parse(raw string) Document {
	m := frontMatterRe.FindStringSubmatch(raw)
	if m == nil {
		return Document{Content: raw}
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return Document{Content: raw}
	}

	body := raw[len(m[0]):]

	title, _ := fm["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		// Front matter parsed but has no usable title; the caller derives a
		// fallback title (e.g. from the filename).
		return Document{Content: body}
	}

	return Document{
		Valid:   true,
		Title:   title,
		Tags:    parseTags(fm["tags"]),
		Content: body,
	}
}

// parseTags normalises the front-matter tags field into a string slice.
func parseTags(raw any) []string {
	out := []string{}
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// FallbackTitle derives a note title from a filename when the imported
// document had no usable front-matter title: the extension is stripped and
// a placeholder is used when nothing remains.
func FallbackTitle(filename string) string {
	name := strings.TrimSpace(filename)
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".markdown"):
		name = name[:len(name)-len(".markdown")]
	case strings.HasSuffix(lower, ".md"):
		name = name[:len(name)-len(".md")]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "Untitled"
	}
	return name
}
