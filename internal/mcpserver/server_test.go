package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Stack) {
	t.Helper()
	st, _ := testutil.MemoryStack(t)
	return New(st.Manager, st.Coordinator, "test"), st
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so the
	// handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_notebook":
		result, err = srv.getNotebook(ctx, req)
	case "list_sources":
		result, err = srv.listSources(ctx, req)
	case "read_source":
		result, err = srv.readSource(ctx, req)
	case "add_source":
		result, err = srv.addSource(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "add_note":
		result, err = srv.addNote(ctx, req)
	case "search_notebook":
		result, err = srv.searchNotebook(ctx, req)
	case "storage_status":
		result, err = srv.storageStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetNotebook(t *testing.T) {
	srv, st := testServer(t)
	_ = st.Manager.Rename("Thesis")
	r := callTool(t, srv, "get_notebook", nil)
	var sum notebookSummary
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Title != "Thesis" || sum.ID == "" || sum.UpdatedAt == "" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestAddAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "add_note", map[string]interface{}{"content": "# Plan\nstep one"})
	if r.IsError || !strings.HasSuffix(resultText(r), " Plan") {
		t.Fatalf("add result = %q", resultText(r))
	}

	list := resultText(callTool(t, srv, "list_notes", nil))
	id, _, ok := strings.Cut(list, "\t")
	if !ok {
		t.Fatalf("list = %q", list)
	}
	r = callTool(t, srv, "read_note", map[string]interface{}{"id": id})
	if text := resultText(r); text != "# Plan\nstep one" {
		t.Errorf("read result = %q", text)
	}
}

func TestReadMissing(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "read_note", map[string]interface{}{"id": "nope"}); !r.IsError {
		t.Error("expected error for missing note")
	}
	if r := callTool(t, srv, "read_source", map[string]interface{}{"id": "nope"}); !r.IsError {
		t.Error("expected error for missing source")
	}
	if r := callTool(t, srv, "read_note", nil); !r.IsError {
		t.Error("expected error for missing id argument")
	}
}

func TestSourcesTools(t *testing.T) {
	srv, st := testServer(t)
	if text := resultText(callTool(t, srv, "list_sources", nil)); text != "no sources" {
		t.Errorf("empty list = %q", text)
	}
	src, _ := st.Manager.AddSource(notebook.SourceInput{Kind: models.SourcePDF, Name: "paper.pdf", Content: "abstract"})

	list := resultText(callTool(t, srv, "list_sources", nil))
	if list != src.ID+"\tpdf\tpaper.pdf" {
		t.Errorf("list = %q", list)
	}
	if text := resultText(callTool(t, srv, "read_source", map[string]interface{}{"id": src.ID})); text != "abstract" {
		t.Errorf("read = %q", text)
	}
}

func TestAddSourceFromDataURI(t *testing.T) {
	srv, st := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("pasted words"))
	r := callTool(t, srv, "add_source", map[string]interface{}{"url": uri, "name": "clip"})
	if r.IsError {
		t.Fatalf("add_source: %s", resultText(r))
	}
	srcs := st.Manager.Snapshot().Sources
	if len(srcs) != 1 || srcs[0].Kind != models.SourceText || srcs[0].Content != "pasted words" || srcs[0].Name != "clip" {
		t.Errorf("sources = %+v", srcs)
	}
}

func TestAddSourceRejects(t *testing.T) {
	srv, st := testServer(t)
	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n"))
	for _, u := range []string{png, "data:text/plain,plain", "ftp://example.com/x.txt", "http://127.0.0.1/x.txt"} {
		if r := callTool(t, srv, "add_source", map[string]interface{}{"url": u}); !r.IsError {
			t.Errorf("%s accepted", u)
		}
	}
	if n := len(st.Manager.Snapshot().Sources); n != 0 {
		t.Errorf("sources = %d", n)
	}
}

func TestToText_HTML(t *testing.T) {
	got, err := toText(fetched{data: []byte("<p>Hello <b>web</b></p>"), mediaType: "text/html"})
	if err != nil || got != "Hello web" {
		t.Errorf("toText = %q, %v", got, err)
	}
}

func TestNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/docs/guide.html": "guide.html",
		"https://example.com/":                "example.com",
		"data:text/plain;base64,eA==":         "Pasted text",
	}
	for in, want := range cases {
		if got := nameFromURL(in); got != want {
			t.Errorf("nameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchAndStatus(t *testing.T) {
	srv, st := testServer(t)
	_, _ = st.Manager.AddNote("", notebook.NoteEdit{PlainText: "mitochondria"})

	var hits []notebook.Hit
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "search_notebook", map[string]interface{}{"query": "mito"}))), &hits)
	if len(hits) != 1 || hits[0].Kind != notebook.HitNote {
		t.Errorf("hits = %+v", hits)
	}

	st.Flush(t)
	var rep storageReport
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "storage_status", nil))), &rep)
	if rep.LastSavedAt.IsZero() || rep.Breakdown.Notes == 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestExportFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	res, err := srv.readExportFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
	tc, ok := res[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "schemaVersion") {
		t.Errorf("contents = %+v", res[0])
	}
}
