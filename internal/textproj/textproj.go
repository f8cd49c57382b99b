// Package textproj derives plain-text projections and titles from rich note
// content and from uploaded Markdown text.
package textproj

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MaxTitleRunes bounds derived titles.
const MaxTitleRunes = 50

// UntitledNote is used when no title can be derived.
const UntitledNote = "Untitled note"

var (
	blockTagRe = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|blockquote|pre|tr|table)\b[^>]*>`)
	anyTagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe    = regexp.MustCompile(`[ \t]+`)
	blankRe    = regexp.MustCompile(`\n{3,}`)
)

// PlainText converts editor HTML into its plain-text projection. Block-level
// tags become line breaks; all other markup is dropped and entities decoded.
func PlainText(rich string) string {
	if !strings.ContainsRune(rich, '<') {
		return strings.TrimSpace(html.UnescapeString(rich))
	}
	s := blockTagRe.ReplaceAllString(rich, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// DeriveTitle returns the first non-empty line of content, stripped of a
// leading Markdown heading marker and truncated to MaxTitleRunes.
func DeriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		t = strings.TrimSpace(strings.TrimLeft(t, "#"))
		if t == "" {
			continue
		}
		return truncate(t, MaxTitleRunes)
	}
	return UntitledNote
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

// Document is an uploaded Markdown or text file split into frontmatter and body.
type Document struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
}

// ParseDocument splits optional YAML frontmatter from the body and derives a
// title from the frontmatter "title" key or the first H1 heading.
func ParseDocument(data []byte) *Document {
	fm, body := splitFrontmatter(data)
	return &Document{
		Frontmatter: fm,
		Body:        body,
		Title:       headingTitle(fm, body),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Missing or invalid frontmatter leaves everything as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

func headingTitle(fm map[string]interface{}, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
