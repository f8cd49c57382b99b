package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/codec"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/persist"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/testutil"
)

// testEnv builds a loaded in-memory stack and a router over it. An empty
// authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Stack, http.Handler) {
	t.Helper()
	st, _ := testutil.MemoryStack(t)
	h := NewHandler(st.Manager, st.Coordinator, nil)
	return st, NewRouter(h, authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestGetNotebook(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notebook", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	nb := decode[models.Notebook](t, w)
	if nb.Title != models.DefaultTitle || nb.Sources == nil {
		t.Errorf("notebook = %+v", nb)
	}
}

func TestRenameNotebook(t *testing.T) {
	st, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/notebook/title", RenameRequest{Title: "Thesis"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if st.Manager.Snapshot().Title != "Thesis" {
		t.Error("title not changed")
	}

	w = do(t, router, http.MethodPut, "/notebook/title", RenameRequest{Title: " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty title = %d, want 400", w.Code)
	}
	if body := decode[errResponse](t, w); body.Kind != "invalid" {
		t.Errorf("kind = %q", body.Kind)
	}
}

func TestSourcesLifecycle(t *testing.T) {
	st, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/sources", AddSourceRequest{Kind: models.SourceURL, Name: "Go", URL: "https://go.dev"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add = %d, body = %s", w.Code, w.Body.String())
	}
	src := decode[models.Source](t, w)
	if src.Metadata.URL != "https://go.dev" || src.ID == "" {
		t.Errorf("source = %+v", src)
	}

	w = do(t, router, http.MethodPost, "/sources", AddSourceRequest{Kind: "scroll", Name: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad kind = %d", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/sources/"+src.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/sources/"+src.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", w.Code)
	}
	if n := len(st.Manager.Snapshot().Sources); n != 0 {
		t.Errorf("sources = %d", n)
	}
}

func uploadFile(t *testing.T, router http.Handler, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadSource(t *testing.T) {
	_, router := testEnv(t, "")
	w := uploadFile(t, router, "/sources", "notes.md", []byte("---\ntitle: T\n---\nbody"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	src := decode[models.Source](t, w)
	if src.Kind != models.SourceText || src.Name != "notes.md" || src.Content != "body" {
		t.Errorf("source = %+v", src)
	}

	w = uploadFile(t, router, "/sources", "blob.bin", []byte{0xff, 0xfe, 0xfd})
	if w.Code != http.StatusBadRequest {
		t.Errorf("binary upload = %d, want 400", w.Code)
	}
}

func TestUploadSource_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", w.Code)
	}
}

func TestChat(t *testing.T) {
	st, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/chat", AppendMessageRequest{Role: models.RoleUser, Content: "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("append = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/chat", AppendMessageRequest{Role: "system", Content: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad role = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/chat", AppendMessageRequest{Role: models.RoleUser})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/chat", nil)
	if w.Code != http.StatusNoContent || len(st.Manager.Snapshot().Chat) != 0 {
		t.Errorf("clear = %d", w.Code)
	}
}

func TestOutputs(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/outputs", AddOutputRequest{
		Kind: models.OutputFlashcards, Title: "Deck", Content: json.RawMessage(`[{"q":"a","a":"b"}]`),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[models.StudioOutput](t, w)
	if string(out.Content) != `[{"q":"a","a":"b"}]` {
		t.Errorf("content = %s", out.Content)
	}
	if w := do(t, router, http.MethodDelete, "/outputs/"+out.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/outputs/"+out.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d", w.Code)
	}
}

func TestNotes(t *testing.T) {
	st, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/notes", AddNoteRequest{HTML: "<h1>Idea</h1><p>grow</p>"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add = %d", w.Code)
	}
	note := decode[models.Note](t, w)
	if note.Title != "Idea" {
		t.Errorf("derived title = %q", note.Title)
	}

	html := "<p>changed</p>"
	w = do(t, router, http.MethodPut, "/notes/"+note.ID, UpdateNoteRequest{HTML: &html})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	updated := decode[models.Note](t, w)
	if updated.Content != "changed" || updated.Title != "Idea" {
		t.Errorf("updated = %+v", updated)
	}

	w = do(t, router, http.MethodPut, "/notes/ghost", UpdateNoteRequest{HTML: &html})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/"+note.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if len(st.Manager.Snapshot().Notes) != 0 {
		t.Error("note not removed")
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/notes", AddNoteRequest{PlainText: "chlorophyll absorbs light"})
	w := do(t, router, http.MethodGet, "/search?q=light", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	if res := decode[SearchResponse](t, w); len(res.Results) != 1 {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", w.Code)
	}
}

func TestStorageStatusAndFlush(t *testing.T) {
	st, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/sources", AddSourceRequest{Kind: models.SourceText, Name: "a", Content: "abc"})

	w := do(t, router, http.MethodPost, "/storage/flush", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("flush = %d, body = %s", w.Code, w.Body.String())
	}
	if s := decode[persist.Status](t, w); s.State != persist.StateSaved {
		t.Errorf("state = %s", s.State)
	}

	w = do(t, router, http.MethodGet, "/storage", nil)
	res := decode[StorageResponse](t, w)
	if res.LastSavedAt.IsZero() || res.Breakdown.Sources == 0 || res.Breakdown.Total == 0 {
		t.Errorf("storage = %+v", res)
	}
	if rec, _ := st.Backend.Get(context.Background()); rec == nil || len(rec.Sources) != 1 {
		t.Error("flush did not persist")
	}
}

type quotaBackend struct{ *storage.Memory }

func (quotaBackend) Put(context.Context, *codec.Record) error {
	return apperr.ErrQuotaExceeded
}

func TestFlushQuotaExceededAndDismiss(t *testing.T) {
	st := testutil.NewStack(t, quotaBackend{storage.NewMemory()})
	router := NewRouter(NewHandler(st.Manager, st.Coordinator, nil), false, "", nil)
	_ = st.Manager.Rename("x")

	w := do(t, router, http.MethodPost, "/storage/flush", nil)
	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("flush = %d, want 507", w.Code)
	}
	if body := decode[errResponse](t, w); body.Kind != "quota_exceeded" {
		t.Errorf("kind = %q", body.Kind)
	}
	if res := decode[StorageResponse](t, do(t, router, http.MethodGet, "/storage", nil)); res.ErrorKind != "quota_exceeded" {
		t.Errorf("status error kind = %q", res.ErrorKind)
	}
	if w := do(t, router, http.MethodDelete, "/storage/error", nil); w.Code != http.StatusNoContent {
		t.Errorf("dismiss = %d", w.Code)
	}
	if res := decode[StorageResponse](t, do(t, router, http.MethodGet, "/storage", nil)); res.Error != "" {
		t.Errorf("error not dismissed: %q", res.Error)
	}
	// The in-memory notebook survives the failed write.
	if st.Manager.Snapshot().Title != "x" {
		t.Error("in-memory state lost")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/notebook/title", RenameRequest{Title: "Field Work"})
	do(t, router, http.MethodPost, "/sources", AddSourceRequest{Kind: models.SourcePDF, Name: "paper.pdf"})
	do(t, router, http.MethodPost, "/notes", AddNoteRequest{PlainText: "n"})

	w := do(t, router, http.MethodGet, "/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "quire-field-work-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := w.Body.Bytes()
	src := decode[codec.Envelope](t, w)

	target, targetRouter := testEnv(t, "")
	w = uploadFile(t, targetRouter, "/import", "export.json", exported)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	got := target.Manager.Snapshot()
	if got.ID != src.Notebook.ID || got.Title != "Field Work" || len(got.Sources) != 1 || len(got.Notes) != 1 {
		t.Errorf("imported = %+v", got)
	}
	if rec, _ := target.Backend.Get(context.Background()); rec == nil || rec.ID != got.ID {
		t.Error("import not persisted")
	}
}

func TestImportRawBodyRejected(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(`{"hello": "world"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad import = %d, want 400", w.Code)
	}
	if body := decode[errResponse](t, w); body.Kind != "import_invalid" {
		t.Errorf("kind = %q", body.Kind)
	}
}

func TestClearStorage(t *testing.T) {
	st, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/sources", AddSourceRequest{Kind: models.SourceText, Name: "a"})
	st.Flush(t)
	oldID := st.Manager.Snapshot().ID

	if w := do(t, router, http.MethodDelete, "/storage", nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", w.Code)
	}
	if rec, _ := st.Backend.Get(context.Background()); rec != nil {
		t.Error("record survived clear")
	}
	nb := st.Manager.Snapshot()
	if nb.ID == oldID || len(nb.Sources) != 0 {
		t.Errorf("notebook after clear = %+v", nb)
	}
	if !st.Coordinator.LastSavedAt().IsZero() {
		t.Error("last saved indicator not reset")
	}
}

func TestResetNotebook(t *testing.T) {
	st, router := testEnv(t, "")
	old := st.Manager.Snapshot().ID
	w := do(t, router, http.MethodPost, "/notebook/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}
	if nb := decode[models.Notebook](t, w); nb.ID == old {
		t.Error("reset kept the old identity")
	}
}

func TestNotLoaded(t *testing.T) {
	st, _ := testutil.MemoryStack(t)
	router := NewRouter(NewHandler(notLoadedManager(t), st.Coordinator, nil), false, "", nil)
	if w := do(t, router, http.MethodGet, "/notebook", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("get = %d, want 503", w.Code)
	}
	w := do(t, router, http.MethodPost, "/chat", AppendMessageRequest{Role: models.RoleUser, Content: "x"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("mutation = %d, want 503", w.Code)
	}
}

func TestWriteError_Internal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, "op", errors.New("boom"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error != "internal error" {
		t.Errorf("leaked error text: %q", body.Error)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notebook", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notebook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notebook", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	st, _ := testutil.MemoryStack(t)

	// Minimal SSE handler stub — writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(NewHandler(st.Manager, st.Coordinator, nil), authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSafeName(t *testing.T) {
	for _, bad := range []string{"", "../x", "a/b.txt", ".."} {
		if _, err := safeName(bad); err == nil {
			t.Errorf("safeName(%q) accepted", bad)
		}
	}
	if got, err := safeName("paper.pdf"); err != nil || got != "paper.pdf" {
		t.Errorf("safeName = %q, %v", got, err)
	}
}

func notLoadedManager(t *testing.T) *notebook.Manager {
	t.Helper()
	return notebook.New(persist.New(storage.NewMemory()), notebook.WithLogger(testutil.Logger()))
}
