package noterepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noteforest/noteforest/internal/apperr"
	"github.com/noteforest/noteforest/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	UNIQUE(note_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at);
CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);

CREATE TABLE IF NOT EXISTS auth (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	password_hash TEXT NOT NULL
);
`

// SQLite implements Repository backed by a local SQLite database.
type SQLite struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("noterepo: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("noterepo: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("noterepo: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (r *SQLite) Close() error {
	return r.conn.Close()
}

func validateNote(title string, tagNames []string) error {
	if err := validation.Validate(title, validation.Required, validation.Length(1, 255)); err != nil {
		return fmt.Errorf("%w: title: %v", apperr.ErrValidation, err)
	}
	for _, name := range tagNames {
		if err := validation.Validate(name, validation.Required, validation.Length(1, 50)); err != nil {
			return fmt.Errorf("%w: tag %q: %v", apperr.ErrValidation, name, err)
		}
	}
	return nil
}

// Create inserts a note, lazily creating any tags it references by name.
func (r *SQLite) Create(ctx context.Context, title, content string, tagNames []string) (*models.Note, error) {
	if err := validateNote(title, tagNames); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("noterepo: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx,
		`INSERT INTO notes (title, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, content, now, now)
	if err != nil {
		return nil, fmt.Errorf("noterepo: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("noterepo: note id: %w", err)
	}

	if err := syncTags(ctx, tx, id, tagNames, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("noterepo: commit: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID returns the note with its tags.
func (r *SQLite) GetByID(ctx context.Context, id int64) (*models.Note, error) {
	var n models.Note
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("noterepo: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("noterepo: get note %d: %w", id, err)
	}
	tags, err := r.noteTags(ctx, id)
	if err != nil {
		return nil, err
	}
	n.Tags = tags
	return &n, nil
}

// Update applies a partial update. A non-nil TagNames fully replaces the
// note's tag set; nil fields are left unchanged.
func (r *SQLite) Update(ctx context.Context, id int64, params UpdateParams) (*models.Note, error) {
	if params.Title != nil {
		if err := validation.Validate(*params.Title, validation.Required, validation.Length(1, 255)); err != nil {
			return nil, fmt.Errorf("%w: title: %v", apperr.ErrValidation, err)
		}
	}
	if params.TagNames != nil {
		if err := validateTagNames(*params.TagNames); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("noterepo: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM notes WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("noterepo: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("noterepo: find note %d: %w", id, err)
	}

	if params.Title != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET title = ? WHERE id = ?`, *params.Title, id); err != nil {
			return nil, fmt.Errorf("noterepo: update title: %w", err)
		}
	}
	if params.Content != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE notes SET content = ? WHERE id = ?`, *params.Content, id); err != nil {
			return nil, fmt.Errorf("noterepo: update content: %w", err)
		}
	}
	if params.TagNames != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, id); err != nil {
			return nil, fmt.Errorf("noterepo: clear tags: %w", err)
		}
		if err := syncTags(ctx, tx, id, *params.TagNames, now); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("noterepo: touch note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("noterepo: commit: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Delete removes a note; its tag links go with it via cascade.
func (r *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("noterepo: delete note %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("noterepo: delete note %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("noterepo: note %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// likeEscaper neutralizes LIKE metacharacters in user search input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns one page of notes ordered by most-recently-updated first,
// plus the total count matching the filter.
func (r *SQLite) List(ctx context.Context, q Query) (*ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []any
	if q.Search != "" {
		// The query is a plain substring, so LIKE metacharacters in it
		// must match literally.
		like := "%" + likeEscaper.Replace(q.Search) + "%"
		where = append(where, `(n.title LIKE ? ESCAPE '\' OR n.content LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	if len(q.TagIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.TagIDs)), ",")
		where = append(where, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM note_tags nt WHERE nt.note_id = n.id AND nt.tag_id IN (%s))`, placeholders))
		for _, tid := range q.TagIDs {
			args = append(args, tid)
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes n`+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("noterepo: count notes: %w", err)
	}

	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset)
	rows, err := r.conn.QueryContext(ctx,
		`SELECT n.id, n.title, n.content, n.created_at, n.updated_at FROM notes n`+cond+
			` ORDER BY n.updated_at DESC, n.id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("noterepo: list notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("noterepo: scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("noterepo: list notes: %w", err)
	}

	for i := range notes {
		tags, err := r.noteTags(ctx, notes[i].ID)
		if err != nil {
			return nil, err
		}
		notes[i].Tags = tags
	}

	return &ListResult{Notes: notes, Total: total}, nil
}

// ListTags returns all tags ordered by name.
func (r *SQLite) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT id, name, created_at FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("noterepo: list tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("noterepo: scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("noterepo: list tags: %w", err)
	}
	return tags, nil
}

// PasswordHash returns the stored password hash, or "" when no password
// has been set up yet.
func (r *SQLite) PasswordHash(ctx context.Context) (string, error) {
	var hash string
	err := r.conn.QueryRowContext(ctx, `SELECT password_hash FROM auth WHERE id = 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("noterepo: password hash: %w", err)
	}
	return hash, nil
}

// SetPasswordHash stores the single-user password hash.
func (r *SQLite) SetPasswordHash(ctx context.Context, hash string) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO auth (id, password_hash) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET password_hash = excluded.password_hash
	`, hash)
	if err != nil {
		return fmt.Errorf("noterepo: set password hash: %w", err)
	}
	return nil
}

func validateTagNames(names []string) error {
	for _, name := range names {
		if err := validation.Validate(name, validation.Required, validation.Length(1, 50)); err != nil {
			return fmt.Errorf("%w: tag %q: %v", apperr.ErrValidation, name, err)
		}
	}
	return nil
}

// syncTags links the note to the named tags, creating missing tags.
func syncTags(ctx context.Context, tx *sql.Tx, noteID int64, names []string, now time.Time) error {
	for _, name := range names {
		var tagID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID)
		if errors.Is(err, sql.ErrNoRows) {
			res, insErr := tx.ExecContext(ctx, `INSERT INTO tags (name, created_at) VALUES (?, ?)`, name, now)
			if insErr != nil {
				return fmt.Errorf("noterepo: create tag %q: %w", name, insErr)
			}
			tagID, insErr = res.LastInsertId()
			if insErr != nil {
				return fmt.Errorf("noterepo: tag id: %w", insErr)
			}
		} else if err != nil {
			return fmt.Errorf("noterepo: find tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)`, noteID, tagID); err != nil {
			return fmt.Errorf("noterepo: link tag %q: %w", name, err)
		}
	}
	return nil
}

// noteTags returns the note's tags in link order (tag id ascending).
func (r *SQLite) noteTags(ctx context.Context, noteID int64) ([]models.Tag, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ?
		ORDER BY t.id ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("noterepo: note tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("noterepo: scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
