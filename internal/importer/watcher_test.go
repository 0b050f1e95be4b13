package importer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noteforest/noteforest/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeImporter struct {
	mu     sync.Mutex
	fail   bool
	nextID int64
	calls  []importedDoc
}

type importedDoc struct {
	title   string
	content string
	tags    []string
}

func (f *fakeImporter) ImportNote(ctx context.Context, title, content string, tagNames []string) *models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil
	}
	f.calls = append(f.calls, importedDoc{title: title, content: content, tags: tagNames})
	f.nextID++
	return &models.Note{ID: f.nextID, Title: title, Content: content}
}

func (f *fakeImporter) imported() []importedDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]importedDoc(nil), f.calls...)
}

func startWatcher(t *testing.T, imp *fakeImporter, inbox string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, imp, inbox, testLogger())
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatch_ImportsExistingFiles(t *testing.T) {
	inbox := t.TempDir()
	content := "---\ntitle: Existing\ntags: [inbox]\n---\nbody"
	if err := os.WriteFile(filepath.Join(inbox, "existing.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	imp := &fakeImporter{}
	startWatcher(t, imp, inbox)

	waitFor(t, func() bool { return len(imp.imported()) == 1 })
	got := imp.imported()[0]
	if got.title != "Existing" || got.content != "body" || len(got.tags) != 1 {
		t.Errorf("imported = %+v", got)
	}
	// The file is consumed.
	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, "existing.md"))
		return os.IsNotExist(err)
	})
}

func TestWatch_ImportsDroppedFile(t *testing.T) {
	inbox := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, imp, inbox)

	content := "---\ntitle: Dropped\n---\nhello"
	if err := os.WriteFile(filepath.Join(inbox, "dropped.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(imp.imported()) == 1 })
	if got := imp.imported()[0]; got.title != "Dropped" || got.content != "hello" {
		t.Errorf("imported = %+v", got)
	}
}

func TestWatch_FilenameFallbackTitle(t *testing.T) {
	inbox := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, imp, inbox)

	// No front matter: the title comes from the filename.
	if err := os.WriteFile(filepath.Join(inbox, "Meeting Notes.md"), []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(imp.imported()) == 1 })
	got := imp.imported()[0]
	if got.title != "Meeting Notes" || got.content != "plain text" {
		t.Errorf("imported = %+v", got)
	}
}

func TestWatch_IgnoresNonMarkdown(t *testing.T) {
	inbox := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, imp, inbox)

	if err := os.WriteFile(filepath.Join(inbox, "photo.png"), []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "note.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(imp.imported()) == 1 })
	if _, err := os.Stat(filepath.Join(inbox, "photo.png")); err != nil {
		t.Errorf("non-markdown file must be left alone: %v", err)
	}
}

func TestWatch_FailedImportLeavesFile(t *testing.T) {
	inbox := t.TempDir()
	imp := &fakeImporter{fail: true}
	startWatcher(t, imp, inbox)

	path := filepath.Join(inbox, "stuck.md")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the settle delay time to fire, then check the file survived.
	time.Sleep(600 * time.Millisecond)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("failed import must leave the file: %v", err)
	}
	if got := len(imp.imported()); got != 0 {
		t.Errorf("imported = %d, want 0", got)
	}
}
