package api

import (
	"encoding/json"
	"net/http"

	"github.com/noteforest/noteforest/internal/session"
)

// SessionHandler exposes the tab editing session over HTTP.
type SessionHandler struct {
	sess *session.Store
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sess *session.Store) *SessionHandler {
	return &SessionHandler{sess: sess}
}

// State handles GET /api/session.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.State())
}

// OpenTab handles POST /api/session/tabs/{id}/open.
func (h *SessionHandler) OpenTab(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	h.sess.OpenNote(r.Context(), id)
	writeJSON(w, http.StatusOK, h.sess.State())
}

// ActivateTab handles POST /api/session/tabs/{id}/activate.
func (h *SessionHandler) ActivateTab(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	h.sess.SetActiveTab(id)
	writeJSON(w, http.StatusOK, h.sess.State())
}

// CloseTab handles DELETE /api/session/tabs/{id}.
//
// Closing a tab with unsaved changes needs an explicit acknowledgement:
// the first request comes back 409 with the confirmation prompt, and the
// client retries with ?confirm=true once the user agreed.
func (h *SessionHandler) CloseTab(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}

	confirmed := r.URL.Query().Get("confirm") == "true"
	ctx, st := withConfirmDecision(r.Context(), confirmed)
	h.sess.CloseTab(ctx, id)

	if st.prompt != nil && !confirmed {
		writeJSON(w, http.StatusConflict, ConfirmRequiredResponse{
			ConfirmRequired: true,
			Prompt:          promptFrom(*st.prompt),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.sess.State())
}

// SetContent handles PUT /api/session/content.
func (h *SessionHandler) SetContent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.sess.SetContent(req.Content)
	writeJSON(w, http.StatusOK, h.sess.State())
}

// Save handles POST /api/session/save.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.sess.SaveCurrentNote(r.Context())
	writeJSON(w, http.StatusOK, h.sess.State())
}

// CreateNote handles POST /api/session/notes.
func (h *SessionHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	h.sess.CreateNote(r.Context())
	writeJSON(w, http.StatusCreated, h.sess.State())
}

// DeleteCurrentNote handles DELETE /api/session/note.
func (h *SessionHandler) DeleteCurrentNote(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.DeleteCurrentNote(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("delete failed"))
		return
	}
	writeJSON(w, http.StatusOK, h.sess.State())
}

// SetFilters handles PUT /api/session/filters. Absent fields are left
// unchanged; search and tag changes reset pagination.
func (h *SessionHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req FiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ctx := r.Context()
	if req.Search != nil {
		h.sess.SetSearchQuery(ctx, *req.Search)
	}
	if req.TagIDs != nil {
		h.sess.SetSelectedTagIDs(ctx, *req.TagIDs)
	}
	if req.Offset != nil {
		h.sess.SetOffset(ctx, *req.Offset)
	}
	writeJSON(w, http.StatusOK, h.sess.State())
}
