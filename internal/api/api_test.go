package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/noteforest/noteforest/internal/auth"
	"github.com/noteforest/noteforest/internal/models"
	"github.com/noteforest/noteforest/internal/noterepo"
	"github.com/noteforest/noteforest/internal/session"
)

// testEnv sets up a temp SQLite repository, session store, auth manager,
// and router for testing.
func testEnv(t *testing.T) (*noterepo.SQLite, *session.Store, *auth.Manager, http.Handler) {
	t.Helper()

	dbFile, err := os.CreateTemp("", "noteforest-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	repo, err := noterepo.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	sess := session.New(repo, session.Config{Confirmer: RequestConfirmer()})
	mgr := auth.NewManager(repo, time.Hour, nil)
	router := NewRouter(Deps{Repo: repo, Session: sess, Auth: mgr})
	return repo, sess, mgr, router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	_, _, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/notes", map[string]any{
		"title":   "Hello",
		"content": "World",
		"tags":    []string{"greeting"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Hello" || len(note.Tags) != 1 {
		t.Errorf("note = %+v", note)
	}

	w = do(t, router, http.MethodGet, "/notes/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	_, _, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, _, _, router := testEnv(t)

	w := do(t, router, http.MethodGet, "/notes/99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateNote_Partial(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/notes", map[string]any{"title": "T", "content": "v1"})

	w := do(t, router, http.MethodPut, "/notes/1", map[string]any{"content": "v2"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "T" || note.Content != "v2" {
		t.Errorf("note = %+v", note)
	}
}

func TestDeleteNote(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/notes", map[string]any{"title": "T"})

	if w := do(t, router, http.MethodDelete, "/notes/1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", w.Code)
	}
}

func TestListNotes_SearchAndPagination(t *testing.T) {
	_, _, _, router := testEnv(t)

	for _, title := range []string{"Alpha meeting", "Beta", "Gamma meeting"} {
		do(t, router, http.MethodPost, "/notes", map[string]any{"title": title})
	}

	w := do(t, router, http.MethodGet, "/notes?q=meeting", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var res NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Total != 2 || len(res.Notes) != 2 {
		t.Errorf("res = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/notes?limit=2&offset=2", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Total != 3 || len(res.Notes) != 1 {
		t.Errorf("page 2: total = %d, notes = %d", res.Total, len(res.Notes))
	}
}

func TestImportNote(t *testing.T) {
	_, sess, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/notes/import", map[string]any{
		"filename": "imported.md",
		"content":  "---\ntitle: From File\ntags: [inbox]\n---\nbody here",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "From File" || note.Content != "body here" || len(note.Tags) != 1 {
		t.Errorf("note = %+v", note)
	}
	// The imported note is opened in a tab.
	if tab, ok := sess.ActiveTab(); !ok || tab.ID != note.ID {
		t.Errorf("active tab = %+v", tab)
	}
}

func TestImportNote_FallbackTitle(t *testing.T) {
	_, _, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/notes/import", map[string]any{
		"filename": "Shopping List.md",
		"content":  "no front matter here",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("import status = %d", w.Code)
	}
	var note models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Shopping List" {
		t.Errorf("title = %q", note.Title)
	}
}

func TestImportNote_RejectsNonMarkdown(t *testing.T) {
	_, _, _, router := testEnv(t)

	w := do(t, router, http.MethodPost, "/notes/import", map[string]any{
		"filename": "document.txt",
		"content":  "text",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExportNote(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/notes", map[string]any{
		"title":   "My: Note",
		"content": "the body",
		"tags":    []string{"x"},
	})

	w := do(t, router, http.MethodGet, "/notes/1/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	// Filename is sanitised for the filesystem.
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `"My_ Note.md"`) {
		t.Errorf("disposition = %q", cd)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "---\n") || !strings.Contains(body, "title: 'My: Note'") {
		t.Errorf("body = %q", body)
	}
}

func TestSessionFlow(t *testing.T) {
	_, _, _, router := testEnv(t)

	// Create a note through the session; it opens in a tab.
	w := do(t, router, http.MethodPost, "/session/notes", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var st session.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Tabs) != 1 || st.ActiveTabID == 0 {
		t.Fatalf("state = %+v", st)
	}
	id := st.ActiveTabID

	// Edit the buffer; the tab goes dirty.
	w = do(t, router, http.MethodPut, "/session/content", map[string]any{"content": "draft"})
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Tabs[0].Dirty || st.CurrentContent != "draft" {
		t.Fatalf("state = %+v", st)
	}

	// Save; the tab is clean again.
	w = do(t, router, http.MethodPost, "/session/save", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Tabs[0].Dirty {
		t.Fatalf("state = %+v", st)
	}

	// Clean close needs no confirmation.
	w = do(t, router, http.MethodDelete, "/session/tabs/"+itoa(id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Tabs) != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestCloseDirtyTab_ConfirmFlow(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/session/notes", nil)
	w := do(t, router, http.MethodPut, "/session/content", map[string]any{"content": "unsaved"})
	var st session.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	id := st.ActiveTabID

	// First close attempt: 409 with the prompt, tab still open.
	w = do(t, router, http.MethodDelete, "/session/tabs/"+itoa(id), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("close status = %d, want 409", w.Code)
	}
	var conf ConfirmRequiredResponse
	_ = json.Unmarshal(w.Body.Bytes(), &conf)
	if !conf.ConfirmRequired || conf.Prompt.Title != "Unsaved changes" {
		t.Errorf("response = %+v", conf)
	}

	w = do(t, router, http.MethodGet, "/session", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Tabs) != 1 {
		t.Fatalf("tab must survive unconfirmed close")
	}

	// Retry with confirm=true: the tab closes.
	w = do(t, router, http.MethodDelete, "/session/tabs/"+itoa(id)+"?confirm=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirmed close status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Tabs) != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestDeleteCurrentNote_NoConfirmNeeded(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/session/notes", nil)
	do(t, router, http.MethodPut, "/session/content", map[string]any{"content": "unsaved"})

	// Deleting the note closes its dirty tab without any 409 round trip.
	w := do(t, router, http.MethodDelete, "/session/note", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var st session.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if len(st.Tabs) != 0 || st.Total != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestSessionFilters(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/notes", map[string]any{"title": "Alpha"})
	do(t, router, http.MethodPost, "/notes", map[string]any{"title": "Beta"})

	w := do(t, router, http.MethodPut, "/session/filters", map[string]any{"search": "alp"})
	if w.Code != http.StatusOK {
		t.Fatalf("filters status = %d", w.Code)
	}
	var st session.State
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.SearchQuery != "alp" || st.Total != 1 {
		t.Errorf("state = query %q, total %d", st.SearchQuery, st.Total)
	}
}

func TestAuthFlow(t *testing.T) {
	_, _, _, router := testEnv(t)

	// Before setup the app is open.
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Fatalf("open mode status = %d", w.Code)
	}

	w := do(t, router, http.MethodPost, "/auth/setup", map[string]any{"password": "s3cret-enough"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("setup status = %d, body = %s", w.Code, w.Body.String())
	}

	// Locked now.
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("locked status = %d, want 401", w.Code)
	}

	// Wrong password.
	if w := do(t, router, http.MethodPost, "/auth/login", map[string]any{"password": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/auth/login", map[string]any{"password": "s3cret-enough"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	var login LoginResponse
	_ = json.Unmarshal(w.Body.Bytes(), &login)

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authed status = %d", rec.Code)
	}

	// Logout invalidates the token.
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("stale token status = %d, want 401", rec.Code)
	}
}

func TestAuthSetup_RejectsSecondSetup(t *testing.T) {
	_, _, _, router := testEnv(t)

	do(t, router, http.MethodPost, "/auth/setup", map[string]any{"password": "first-password"})
	w := do(t, router, http.MethodPost, "/auth/setup", map[string]any{"password": "second-password"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("re-setup status = %d, want 400", w.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
