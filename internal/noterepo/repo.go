// Package noterepo persists notes and tags and is the single authority for
// their records. Consumers depend on the Repository interface rather than
// the concrete SQLite type to facilitate testing with fakes.
package noterepo

import (
	"context"

	"github.com/noteforest/noteforest/internal/models"
)

// UpdateParams carries a partial note update. Nil fields are left
// unchanged; a non-nil TagNames fully replaces the note's tag set.
type UpdateParams struct {
	Title    *string
	Content  *string
	TagNames *[]string
}

// Query selects a page of notes. Search matches a substring of title or
// content; TagIDs keeps notes carrying at least one of the tags.
type Query struct {
	Search string
	TagIDs []int64
	Limit  int
	Offset int
}

// ListResult is one page of notes plus the total count matching the filter
// regardless of pagination.
type ListResult struct {
	Notes []models.Note
	Total int
}

// Repository is the note persistence contract.
type Repository interface {
	Create(ctx context.Context, title, content string, tagNames []string) (*models.Note, error)
	GetByID(ctx context.Context, id int64) (*models.Note, error)
	Update(ctx context.Context, id int64, params UpdateParams) (*models.Note, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, q Query) (*ListResult, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
}

// Verify *SQLite satisfies Repository at compile time.
var _ Repository = (*SQLite)(nil)
