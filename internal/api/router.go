package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noteforest/noteforest/internal/auth"
	"github.com/noteforest/noteforest/internal/noterepo"
	"github.com/noteforest/noteforest/internal/session"
)

// Deps carries the collaborators the router wires together.
type Deps struct {
	Repo    noterepo.Repository
	Session *session.Store
	Auth    *auth.Manager
	Events  http.Handler // SSE endpoint, optional
}

// NewRouter creates a chi router with all API routes mounted. The auth
// endpoints stay outside the Bearer middleware so a locked app can still
// be logged into.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Repo)
	ah := NewAuthHandler(d.Auth)
	ih := NewImportExportHandler(d.Repo, d.Session)
	sh := NewSessionHandler(d.Session)

	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Get("/status", ah.Status)
		r.Post("/setup", ah.Setup)
		r.Post("/login", ah.Login)
		r.Post("/logout", ah.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth))

		// Notes CRUD.
		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Get("/notes/{id}", h.GetNote)
		r.Put("/notes/{id}", h.UpdateNote)
		r.Delete("/notes/{id}", h.DeleteNote)

		// Tags.
		r.Get("/tags", h.ListTags)

		// Markdown import/export.
		r.Post("/notes/import", ih.Import)
		r.Get("/notes/{id}/export", ih.Export)

		// Editing session.
		r.Get("/session", sh.State)
		r.Post("/session/notes", sh.CreateNote)
		r.Post("/session/tabs/{id}/open", sh.OpenTab)
		r.Post("/session/tabs/{id}/activate", sh.ActivateTab)
		r.Delete("/session/tabs/{id}", sh.CloseTab)
		r.Put("/session/content", sh.SetContent)
		r.Post("/session/save", sh.Save)
		r.Delete("/session/note", sh.DeleteCurrentNote)
		r.Put("/session/filters", sh.SetFilters)

		// SSE endpoint (protected by the same auth middleware).
		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
