package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/noteforest/noteforest/internal/models"
	"github.com/noteforest/noteforest/internal/session"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Validate implements request validation.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Tags, validation.Each(validation.Length(1, 50))),
	)
}

// UpdateNoteRequest is the request body for a partial note update. Absent
// fields are left unchanged; tags, when present, replace the whole set.
type UpdateNoteRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
}

// Validate implements request validation.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(1, 255)),
	)
}

// ImportRequest is the request body for importing a Markdown document.
type ImportRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Validate implements request validation.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required),
	)
}

// PasswordRequest is the request body for auth setup and login.
type PasswordRequest struct {
	Password string `json:"password"`
}

// Validate implements request validation.
func (r PasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
	)
}

// ContentRequest is the request body for editing the active tab's buffer.
type ContentRequest struct {
	Content string `json:"content"`
}

// FiltersRequest is the request body for the session's list filters.
type FiltersRequest struct {
	Search *string  `json:"search"`
	TagIDs *[]int64 `json:"tagIds"`
	Offset *int     `json:"offset"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total"`
}

// AuthStatusResponse describes the auth state of the app.
type AuthStatusResponse struct {
	PasswordSet   bool `json:"passwordSet"`
	Authenticated bool `json:"authenticated"`
}

// LoginResponse carries a freshly issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// ConfirmPrompt mirrors a pending confirmation request to the client.
type ConfirmPrompt struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	ConfirmText string `json:"confirmText"`
	CancelText  string `json:"cancelText"`
}

// ConfirmRequiredResponse tells the client to retry with confirm=true.
type ConfirmRequiredResponse struct {
	ConfirmRequired bool          `json:"confirmRequired"`
	Prompt          ConfirmPrompt `json:"prompt"`
}

func promptFrom(req session.ConfirmRequest) ConfirmPrompt {
	return ConfirmPrompt{
		Title:       req.Title,
		Message:     req.Message,
		ConfirmText: req.ConfirmText,
		CancelText:  req.CancelText,
	}
}
