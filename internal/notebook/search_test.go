package notebook

import (
	"strings"
	"testing"

	"github.com/starford/quire/internal/models"
)

func TestSearch(t *testing.T) {
	m, _ := loadedManager(t)
	_, _ = m.AddSource(SourceInput{Kind: models.SourceText, Name: "Botany", Content: "Photosynthesis converts light into chemical energy."})
	_, _ = m.AddNote("Plants", NoteEdit{PlainText: "Chlorophyll absorbs LIGHT strongly."})
	_, _ = m.AppendMessage(models.RoleUser, "what is light?", nil)

	hits := m.Search("light", 0)
	if len(hits) != 3 {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Kind != HitNote || hits[1].Kind != HitSource || hits[2].Kind != HitChat {
		t.Errorf("order = %s %s %s", hits[0].Kind, hits[1].Kind, hits[2].Kind)
	}
	if !strings.Contains(strings.ToLower(hits[1].Snippet), "light") {
		t.Errorf("snippet = %q", hits[1].Snippet)
	}

	if got := m.Search("light chemical", 0); len(got) != 1 || got[0].Title != "Botany" {
		t.Errorf("multi-term = %+v", got)
	}
	if got := m.Search("light", 1); len(got) != 1 {
		t.Errorf("limit ignored: %d", len(got))
	}
	if got := m.Search("   ", 0); len(got) != 0 {
		t.Errorf("blank query = %+v", got)
	}
}

func TestSnippetClips(t *testing.T) {
	text := strings.Repeat("a ", 100) + "needle " + strings.Repeat("b ", 100)
	s := snippet(text, "needle")
	if !strings.HasPrefix(s, "…") || !strings.HasSuffix(s, "…") || !strings.Contains(s, "needle") {
		t.Errorf("snippet = %q", s)
	}
}
