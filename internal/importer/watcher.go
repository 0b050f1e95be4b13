// Package importer watches an inbox directory and turns Markdown files
// dropped into it into notes. Successfully imported files are removed from
// the inbox; failed ones are left in place for another attempt.
package importer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noteforest/noteforest/internal/markdown"
	"github.com/noteforest/noteforest/internal/models"
)

const settleDelay = 200 * time.Millisecond

// Importer accepts one imported document. Satisfied by
// *session.Store.ImportNote.
type Importer interface {
	ImportNote(ctx context.Context, title, content string, tagNames []string) *models.Note
}

// Watch starts an fsnotify watcher on the inbox directory and imports
// Markdown files until ctx is cancelled. Files already present at startup
// are imported first.
//
// Writes are debounced per file: editors and file managers produce bursts
// of Create/Write events while a file lands, so the import runs only after
// the file has been quiet for a short settle delay.
func Watch(ctx context.Context, imp Importer, inbox string, logger *slog.Logger) error {
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(inbox); err != nil {
		return err
	}

	logger.Info("importer: started", slog.String("inbox", inbox))

	scanInbox(ctx, imp, inbox, logger)

	// pending holds the per-file settle timers; fired paths arrive on due.
	pending := make(map[string]*time.Timer)
	due := make(chan string, 64)

	schedule := func(path string) {
		if t, ok := pending[path]; ok {
			t.Reset(settleDelay)
			return
		}
		pending[path] = time.AfterFunc(settleDelay, func() {
			select {
			case due <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			logger.Info("importer: stopped")
			return nil

		case path := <-due:
			delete(pending, path)
			importFile(ctx, imp, path, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !markdown.IsMarkdownFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule(ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("importer: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// scanInbox imports Markdown files already sitting in the inbox.
func scanInbox(ctx context.Context, imp Importer, inbox string, logger *slog.Logger) {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		logger.Warn("importer: scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !markdown.IsMarkdownFile(e.Name()) {
			continue
		}
		importFile(ctx, imp, filepath.Join(inbox, e.Name()), logger)
	}
}

// importFile parses one inbox file into a note and removes the file on
// success. Documents without usable front matter fall back to a title
// derived from the filename.
func importFile(ctx context.Context, imp Importer, path string, logger *slog.Logger) {
	raw, err := markdown.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		logger.Warn("importer: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	doc := markdown.Parse(raw)
	title := doc.Title
	if !doc.Valid {
		title = markdown.FallbackTitle(filepath.Base(path))
	}

	note := imp.ImportNote(ctx, title, doc.Content, doc.Tags)
	if note == nil {
		logger.Warn("importer: import failed, leaving file", slog.String("path", path))
		return
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("importer: remove failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Info("importer: imported", slog.String("path", path), slog.Int64("note", note.ID))
}
