// Package session implements the tab-based note editing session: the
// single source of truth for which notes are open, which tab is active,
// and what has unsaved edits. It mediates all reads and writes against the
// note repository and survives process restarts through a durable snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/noteforest/noteforest/internal/apperr"
	"github.com/noteforest/noteforest/internal/models"
	"github.com/noteforest/noteforest/internal/noterepo"
)

// DefaultNoteTitle is used when a note is created straight from the
// session (before the user names it).
const DefaultNoteTitle = "New Note"

const defaultPageSize = 50

// Tab is one open note: a handle with its own live edit buffer,
// independent of the repository's last-saved copy.
//
// Invariants: at most one tab is Active; Dirty holds exactly when Content
// differs from Note.Content (the last server-acknowledged content).
type Tab struct {
	ID      int64        `json:"id"`
	Title   string       `json:"title"`
	Dirty   bool         `json:"isDirty"`
	Active  bool         `json:"isActive"`
	Note    *models.Note `json:"note"`
	Content string       `json:"content"`
}

// State is a read-only snapshot of the session handed to UI layers.
type State struct {
	Tabs           []Tab         `json:"tabs"`
	ActiveTabID    int64         `json:"activeTabId"`
	CurrentNote    *models.Note  `json:"currentNote"`
	CurrentContent string        `json:"currentContent"`
	Notes          []models.Note `json:"notes"`
	Total          int           `json:"total"`
	Tags           []models.Tag  `json:"tags"`
	SearchQuery    string        `json:"searchQuery"`
	SelectedTagIDs []int64       `json:"selectedTagIds"`
	Limit          int           `json:"limit"`
	Offset         int           `json:"offset"`
	SidebarOpen    bool          `json:"sidebarOpen"`
	Saving         bool          `json:"isSaving"`
	LoadingNotes   bool          `json:"isLoadingNotes"`
	LoadingTags    bool          `json:"isLoadingTags"`
	LoadingNote    bool          `json:"isLoadingNote"`
}

// Config carries the store's collaborators and settings. Nil collaborators
// get safe defaults: a no-op notifier and a confirmer that denies.
type Config struct {
	Notifier     Notifier
	Confirmer    Confirmer
	SnapshotPath string // empty disables snapshot persistence
	PageSize     int
	Logger       *slog.Logger

	// OnChange fires after every state mutation, including list reloads.
	// Used to nudge connected clients to refetch; it must not block.
	OnChange func()
}

// Store owns the session state. It must be constructed once with New and
// handed by reference to every consumer; there is no hidden global.
//
// Concurrency: state is confined behind mu. Repository calls happen
// outside the lock; their completions re-acquire it and are applied keyed
// by the tab id captured at call time, so a response always lands on the
// tab it was issued for. Completions targeting a since-closed tab are
// dropped. Two in-flight saves for the same tab race last-resolved-wins.
type Store struct {
	repo      noterepo.Repository
	notifier  Notifier
	confirmer Confirmer
	logger    *slog.Logger
	snapPath  string
	onChange  func()

	mu             sync.Mutex
	tabs           []*Tab
	activeTabID    int64 // 0 = no active tab
	searchQuery    string
	selectedTagIDs []int64
	limit          int
	offset         int
	notes          []models.Note
	total          int
	tags           []models.Tag
	sidebarOpen    bool
	loadingNotes   bool
	loadingTags    bool
	loadingNote    bool
	saving         bool
}

// New creates a session store with empty state. Call Rehydrate to restore
// a previous session from the snapshot file.
func New(repo noterepo.Repository, cfg Config) *Store {
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Confirmer == nil {
		cfg.Confirmer = denyConfirmer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func() {}
	}
	return &Store{
		repo:        repo,
		notifier:    cfg.Notifier,
		confirmer:   cfg.Confirmer,
		logger:      cfg.Logger,
		snapPath:    cfg.SnapshotPath,
		onChange:    cfg.OnChange,
		limit:       cfg.PageSize,
		sidebarOpen: true,
	}
}

// --- list and filter operations ---

// LoadNotes fetches the current filter/pagination window. Offset zero
// replaces the cached list (new search/filter); a nonzero offset appends
// the page to what is already cached ("load more"). Total always comes
// from the latest response.
func (s *Store) LoadNotes(ctx context.Context) {
	s.mu.Lock()
	s.loadingNotes = true
	q := noterepo.Query{
		Search: s.searchQuery,
		TagIDs: slices.Clone(s.selectedTagIDs),
		Limit:  s.limit,
		Offset: s.offset,
	}
	s.mu.Unlock()

	res, err := s.repo.List(ctx, q)

	s.mu.Lock()
	s.loadingNotes = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("session: load notes failed", slog.String("error", err.Error()))
		s.notifier.Notify("Failed to load notes", SeverityError)
		return
	}
	if q.Offset == 0 {
		s.notes = res.Notes
	} else {
		s.notes = append(s.notes, res.Notes...)
	}
	s.total = res.Total
	s.mu.Unlock()
	s.onChange()
}

// LoadTags refreshes the cached tag list.
func (s *Store) LoadTags(ctx context.Context) {
	s.mu.Lock()
	s.loadingTags = true
	s.mu.Unlock()

	tags, err := s.repo.ListTags(ctx)

	s.mu.Lock()
	s.loadingTags = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("session: load tags failed", slog.String("error", err.Error()))
		s.notifier.Notify("Failed to load tags", SeverityError)
		return
	}
	s.tags = tags
	s.mu.Unlock()
	s.onChange()
}

// SetSearchQuery resets pagination and reloads the list for the query.
func (s *Store) SetSearchQuery(ctx context.Context, query string) {
	s.mu.Lock()
	s.searchQuery = query
	s.offset = 0
	s.mu.Unlock()
	s.LoadNotes(ctx)
	s.persist()
}

// SetSelectedTagIDs resets pagination and reloads the list for the filter.
func (s *Store) SetSelectedTagIDs(ctx context.Context, tagIDs []int64) {
	s.mu.Lock()
	s.selectedTagIDs = slices.Clone(tagIDs)
	s.offset = 0
	s.mu.Unlock()
	s.LoadNotes(ctx)
	s.persist()
}

// SetOffset moves the pagination window and loads it. A nonzero offset
// appends to the cached list.
func (s *Store) SetOffset(ctx context.Context, offset int) {
	if offset < 0 {
		offset = 0
	}
	s.mu.Lock()
	s.offset = offset
	s.mu.Unlock()
	s.LoadNotes(ctx)
}

// --- tab operations ---

// OpenNote opens a note in a tab. An already-open note is activated and
// its cached note/content become current; the tab's own buffer is reused,
// never a server refetch, so unsaved edits survive. Otherwise the note is
// fetched and a fresh clean tab is appended and activated. A missing note
// leaves the tab set unchanged and raises a warning.
func (s *Store) OpenNote(ctx context.Context, id int64) {
	s.mu.Lock()
	if t := findTab(s.tabs, id); t != nil {
		s.activateLocked(id)
		s.mu.Unlock()
		s.persist()
		return
	}
	s.loadingNote = true
	s.mu.Unlock()

	note, err := s.repo.GetByID(ctx, id)

	s.mu.Lock()
	s.loadingNote = false
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, apperr.ErrNotFound) {
			s.notifier.Notify("Note not found", SeverityWarning)
		} else {
			s.logger.Warn("session: open note failed", slog.Int64("id", id), slog.String("error", err.Error()))
			s.notifier.Notify("Failed to load note", SeverityError)
		}
		return
	}
	if t := findTab(s.tabs, id); t != nil {
		// Opened concurrently while the fetch was in flight; keep that
		// tab's buffer and just activate it.
		s.activateLocked(id)
		s.mu.Unlock()
		s.persist()
		return
	}
	s.tabs = append(s.tabs, &Tab{
		ID:      note.ID,
		Title:   note.Title,
		Note:    note,
		Content: note.Content,
	})
	s.activateLocked(id)
	s.mu.Unlock()
	s.persist()
}

// SetActiveTab switches to the given tab. The outgoing tab's live buffer
// already lives in that tab, so nothing is lost and nothing is saved to
// the repository; the target's cached note/content become current without
// a server refetch.
func (s *Store) SetActiveTab(id int64) {
	s.mu.Lock()
	if s.activeTabID == id || findTab(s.tabs, id) == nil {
		s.mu.Unlock()
		return
	}
	s.activateLocked(id)
	s.mu.Unlock()
	s.persist()
}

// SetContent updates the active tab's live buffer and recomputes its dirty
// flag. Pure local mutation, safe on every keystroke.
func (s *Store) SetContent(text string) {
	s.mu.Lock()
	t := s.activeTabLocked()
	if t == nil || t.Note == nil {
		s.mu.Unlock()
		return
	}
	t.Content = text
	t.Dirty = text != t.Note.Content
	s.mu.Unlock()
	s.persist()
}

// SaveCurrentNote sends the active tab's live content to the repository.
// The target tab id is captured before the call: if the user switches tabs
// while the save is in flight, the completion still lands on the tab it
// was issued for, and it is dropped when that tab was closed meanwhile.
func (s *Store) SaveCurrentNote(ctx context.Context) {
	s.mu.Lock()
	t := s.activeTabLocked()
	if t == nil {
		s.mu.Unlock()
		return
	}
	id := t.ID
	content := t.Content
	s.saving = true
	s.mu.Unlock()

	note, err := s.repo.Update(ctx, id, noterepo.UpdateParams{Content: &content})

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("session: save failed", slog.Int64("id", id), slog.String("error", err.Error()))
		s.notifier.Notify("Failed to save note", SeverityError)
		return
	}
	t = findTab(s.tabs, id)
	if t == nil {
		// Tab closed while the save was in flight; stale completion.
		s.mu.Unlock()
		return
	}
	t.Note = note
	t.Title = note.Title
	t.Content = note.Content
	t.Dirty = false
	s.mu.Unlock()

	s.persist()
	s.notifier.Notify("Note saved", SeveritySuccess)
	s.LoadNotes(ctx)
}

// CloseTab closes a tab. A dirty tab is gated behind a confirmation
// prompt; removal only proceeds when the user confirms. Closing the active
// tab activates the most recently opened remaining tab.
func (s *Store) CloseTab(ctx context.Context, id int64) {
	s.mu.Lock()
	t := findTab(s.tabs, id)
	if t == nil {
		s.mu.Unlock()
		return
	}
	dirty := t.Dirty
	s.mu.Unlock()

	if dirty {
		ok := s.confirmer.Confirm(ctx, ConfirmRequest{
			Title:       "Unsaved changes",
			Message:     "This tab has unsaved changes. Close it anyway?",
			ConfirmText: "Close",
			CancelText:  "Cancel",
		})
		if !ok {
			return
		}
	}

	s.removeTab(id)
	s.persist()
}

// CreateNote creates a fresh note with the default title and opens it.
func (s *Store) CreateNote(ctx context.Context) {
	note, err := s.repo.Create(ctx, DefaultNoteTitle, "", nil)
	if err != nil {
		s.logger.Warn("session: create note failed", slog.String("error", err.Error()))
		s.notifier.Notify("Failed to create note", SeverityError)
		return
	}
	s.LoadNotes(ctx)
	s.OpenNote(ctx, note.ID)
	s.notifier.Notify("Note created", SeveritySuccess)
}

// ImportNote creates a note from imported fields, refreshes the note and
// tag lists, and opens the note in a tab. Returns the created note, or nil
// when the import failed (the failure has been reported).
func (s *Store) ImportNote(ctx context.Context, title, content string, tagNames []string) *models.Note {
	note, err := s.repo.Create(ctx, title, content, tagNames)
	if err != nil {
		s.logger.Warn("session: import note failed", slog.String("title", title), slog.String("error", err.Error()))
		s.notifier.Notify("Failed to import note", SeverityError)
		return nil
	}
	s.LoadNotes(ctx)
	s.LoadTags(ctx)
	s.OpenNote(ctx, note.ID)
	s.notifier.Notify(fmt.Sprintf("Imported %q", note.Title), SeveritySuccess)
	return note
}

// DeleteCurrentNote deletes the active tab's note and closes the tab
// without the dirty-confirmation gate (deletion supersedes the
// unsaved-changes concern). Unlike the other operations it returns the
// failure after notifying, so the calling UI flow can react.
func (s *Store) DeleteCurrentNote(ctx context.Context) error {
	s.mu.Lock()
	t := s.activeTabLocked()
	if t == nil {
		s.mu.Unlock()
		return nil
	}
	id := t.ID
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warn("session: delete note failed", slog.Int64("id", id), slog.String("error", err.Error()))
		s.notifier.Notify("Failed to delete note", SeverityError)
		return fmt.Errorf("session: delete note %d: %w", id, err)
	}

	s.removeTab(id)
	s.persist()
	s.LoadNotes(ctx)
	s.notifier.Notify("Note deleted", SeveritySuccess)
	return nil
}

// Reset discards the whole session: all tabs (including unsaved edits),
// filters, and cached lists. Used when the session owner changes, such as
// after a logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.tabs = nil
	s.activeTabID = 0
	s.searchQuery = ""
	s.selectedTagIDs = nil
	s.offset = 0
	s.notes = nil
	s.total = 0
	s.tags = nil
	s.sidebarOpen = true
	s.mu.Unlock()
	s.persist()
}

// --- sidebar ---

// ToggleSidebar flips the sidebar flag.
func (s *Store) ToggleSidebar() {
	s.mu.Lock()
	s.sidebarOpen = !s.sidebarOpen
	s.mu.Unlock()
	s.persist()
}

// SetSidebarOpen sets the sidebar flag.
func (s *Store) SetSidebarOpen(open bool) {
	s.mu.Lock()
	s.sidebarOpen = open
	s.mu.Unlock()
	s.persist()
}

// --- views ---

// State returns a copy of the full session state for UI consumption.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Tabs:           make([]Tab, len(s.tabs)),
		ActiveTabID:    s.activeTabID,
		Notes:          slices.Clone(s.notes),
		Total:          s.total,
		Tags:           slices.Clone(s.tags),
		SearchQuery:    s.searchQuery,
		SelectedTagIDs: slices.Clone(s.selectedTagIDs),
		Limit:          s.limit,
		Offset:         s.offset,
		SidebarOpen:    s.sidebarOpen,
		Saving:         s.saving,
		LoadingNotes:   s.loadingNotes,
		LoadingTags:    s.loadingTags,
		LoadingNote:    s.loadingNote,
	}
	for i, t := range s.tabs {
		st.Tabs[i] = *t
	}
	if t := s.activeTabLocked(); t != nil {
		st.CurrentNote = t.Note
		st.CurrentContent = t.Content
	}
	return st
}

// Tabs returns a copy of the open tabs in open order.
func (s *Store) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tab, len(s.tabs))
	for i, t := range s.tabs {
		out[i] = *t
	}
	return out
}

// ActiveTab returns the active tab, if any.
func (s *Store) ActiveTab() (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.activeTabLocked(); t != nil {
		return *t, true
	}
	return Tab{}, false
}

// CurrentContent returns the active tab's live buffer, or "".
func (s *Store) CurrentContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.activeTabLocked(); t != nil {
		return t.Content
	}
	return ""
}

// Notes returns the cached notes page(s) and the latest total.
func (s *Store) Notes() ([]models.Note, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes), s.total
}

// Tags returns the cached tag list.
func (s *Store) Tags() []models.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tags)
}

// --- internals ---

// activateLocked makes id the single active tab (0 clears activation).
// Caller holds mu.
func (s *Store) activateLocked(id int64) {
	s.activeTabID = 0
	for _, t := range s.tabs {
		t.Active = t.ID == id && id != 0
		if t.Active {
			s.activeTabID = id
		}
	}
}

// activeTabLocked returns the active tab or nil. Caller holds mu.
func (s *Store) activeTabLocked() *Tab {
	if s.activeTabID == 0 {
		return nil
	}
	return findTab(s.tabs, s.activeTabID)
}

// removeTab deletes the tab and, when it was active, activates the last
// remaining tab in open order (most recently opened survivor).
func (s *Store) removeTab(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.tabs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	wasActive := s.tabs[idx].Active
	s.tabs = slices.Delete(s.tabs, idx, idx+1)

	if !wasActive {
		return
	}
	if len(s.tabs) == 0 {
		s.activateLocked(0)
		return
	}
	s.activateLocked(s.tabs[len(s.tabs)-1].ID)
}

func findTab(tabs []*Tab, id int64) *Tab {
	for _, t := range tabs {
		if t.ID == id {
			return t
		}
	}
	return nil
}
