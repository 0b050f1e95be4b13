// Package models defines the domain types for NoteForest.
package models

import "time"

// Note is a single note with its attached tags. The repository owns the
// authoritative record; everything else holds copies.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tag is a label shared across notes. Names are unique; a tag is created
// lazily the first time any note references the name.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
