package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/noteforest/noteforest/internal/apperr"
	"github.com/noteforest/noteforest/internal/markdown"
	"github.com/noteforest/noteforest/internal/models"
	"github.com/noteforest/noteforest/internal/session"
)

// ImportExportHandler converts notes to and from Markdown documents.
type ImportExportHandler struct {
	repo noteReader
	sess *session.Store
}

type noteReader interface {
	GetByID(ctx context.Context, id int64) (*models.Note, error)
}

// NewImportExportHandler creates a new ImportExportHandler.
func NewImportExportHandler(repo noteReader, sess *session.Store) *ImportExportHandler {
	return &ImportExportHandler{repo: repo, sess: sess}
}

// Import handles POST /api/notes/import. Only Markdown filenames are
// accepted; the check runs before any parsing. Documents without usable
// front matter become a note titled after the filename.
func (h *ImportExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !markdown.IsMarkdownFile(req.Filename) {
		writeJSON(w, http.StatusBadRequest, errorBody("only Markdown files (.md, .markdown) can be imported"))
		return
	}

	doc := markdown.Parse(req.Content)
	title := doc.Title
	if !doc.Valid {
		title = markdown.FallbackTitle(req.Filename)
	}

	note := h.sess.ImportNote(r.Context(), title, doc.Content, doc.Tags)
	if note == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("import failed"))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// Export handles GET /api/notes/{id}/export: the note rendered as a
// Markdown document with YAML front matter, served as a download.
func (h *ImportExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	note, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("export failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	tagNames := make([]string, 0, len(note.Tags))
	for _, tag := range note.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	doc := markdown.Export(note.Title, tagNames, note.Content)

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", markdown.ExportFilename(note.Title)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
