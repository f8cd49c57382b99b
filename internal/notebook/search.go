package notebook

import (
	"strings"
	"unicode/utf8"
)

// Hit kinds.
const (
	HitSource = "source"
	HitNote   = "note"
	HitChat   = "chat"
	HitOutput = "output"
)

const snippetRadius = 40

// Hit is one search match.
type Hit struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Search returns items whose title or plain text contains every term of
// query, case-insensitively. Notes come first, then sources, outputs and
// chat. limit <= 0 means no limit.
func (m *Manager) Search(query string, limit int) []Hit {
	terms := strings.Fields(strings.ToLower(query))
	nb := m.Snapshot()
	if len(terms) == 0 || nb == nil {
		return []Hit{}
	}

	hits := []Hit{}
	add := func(kind, id, title, text string) bool {
		if !matchAll(strings.ToLower(title+"\n"+text), terms) {
			return true
		}
		hits = append(hits, Hit{Kind: kind, ID: id, Title: title, Snippet: snippet(text, terms[0])})
		return limit <= 0 || len(hits) < limit
	}

	for _, n := range nb.Notes {
		if !add(HitNote, n.ID, n.Title, n.Content) {
			return hits
		}
	}
	for _, s := range nb.Sources {
		if !add(HitSource, s.ID, s.Name, s.Content) {
			return hits
		}
	}
	for _, o := range nb.Outputs {
		if !add(HitOutput, o.ID, o.Title, string(o.Content)) {
			return hits
		}
	}
	for _, c := range nb.Chat {
		if !add(HitChat, c.ID, string(c.Role), c.Content) {
			return hits
		}
	}
	return hits
}

func matchAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// snippet returns the text around the first occurrence of term.
func snippet(text, term string) string {
	lower := strings.ToLower(text)
	i := strings.Index(lower, term)
	if i < 0 || len(lower) != len(text) {
		return clip(text, 0, 2*snippetRadius)
	}
	start := i
	for n := 0; start > 0 && n < snippetRadius; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	return clip(text, start, 2*snippetRadius+utf8.RuneCountInString(term))
}

func clip(text string, start, runes int) string {
	rest := text[start:]
	end := 0
	for n := 0; end < len(rest) && n < runes; n++ {
		_, size := utf8.DecodeRuneInString(rest[end:])
		end += size
	}
	out := strings.Join(strings.Fields(rest[:end]), " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(rest) {
		out += "…"
	}
	return out
}
