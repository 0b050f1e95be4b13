package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/natefinch/atomic"

	"github.com/noteforest/noteforest/internal/models"
)

// snapshotTab is the durable form of a Tab. The Active flag is not stored
// per tab; activation is rebuilt from the snapshot's activeTabId.
type snapshotTab struct {
	ID      int64        `json:"id"`
	Title   string       `json:"title"`
	Dirty   bool         `json:"isDirty"`
	Note    *models.Note `json:"note"`
	Content string       `json:"content"`
}

type snapshot struct {
	Tabs           []snapshotTab `json:"tabs"`
	ActiveTabID    int64         `json:"activeTabId"`
	SearchQuery    string        `json:"searchQuery"`
	SelectedTagIDs []int64       `json:"selectedTagIds"`
	SidebarOpen    bool          `json:"sidebarOpen"`
}

// persist runs after every mutating operation: it fires the change hook
// and writes the session snapshot best-effort. Snapshot failures are
// logged and never surface to the operation that triggered them.
func (s *Store) persist() {
	s.onChange()
	if s.snapPath == "" {
		return
	}
	if err := s.SaveSnapshot(); err != nil {
		s.logger.Warn("session: snapshot write failed", slog.String("error", err.Error()))
	}
}

// SaveSnapshot writes the durable session snapshot atomically. Exposed so
// shutdown can flush the final state and report the failure.
func (s *Store) SaveSnapshot() error {
	if s.snapPath == "" {
		return nil
	}

	s.mu.Lock()
	snap := snapshot{
		Tabs:           make([]snapshotTab, len(s.tabs)),
		ActiveTabID:    s.activeTabID,
		SearchQuery:    s.searchQuery,
		SelectedTagIDs: slices.Clone(s.selectedTagIDs),
		SidebarOpen:    s.sidebarOpen,
	}
	for i, t := range s.tabs {
		snap.Tabs[i] = snapshotTab{ID: t.ID, Title: t.Title, Dirty: t.Dirty, Note: t.Note, Content: t.Content}
	}
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.snapPath), 0o755); err != nil {
		return fmt.Errorf("session: snapshot dir: %w", err)
	}
	if err := atomic.WriteFile(s.snapPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("session: write snapshot: %w", err)
	}
	return nil
}

// Rehydrate restores the session from the snapshot file, then refreshes it
// from the repository best-effort. A missing or unreadable snapshot yields
// a fresh session. Structurally broken parts of the snapshot are dropped
// rather than failing the whole restore: tabs without a note record or
// with a duplicate id are discarded, and a dangling active reference falls
// back to the last remaining tab.
//
// The refresh pulls current note and tag lists and the active tab's fresh
// note record. When a restored tab carried unsaved content, that content
// wins over the fresh record; only the dirty flag is recomputed against
// it. Repository failures during refresh leave the restored local state in
// place, so the session is usable even when the store is unreachable at
// startup.
func (s *Store) Rehydrate(ctx context.Context) {
	if s.snapPath == "" {
		return
	}

	data, err := os.ReadFile(s.snapPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("session: snapshot read failed", slog.String("error", err.Error()))
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("session: snapshot decode failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.tabs = nil
	seen := make(map[int64]bool)
	for _, st := range snap.Tabs {
		if st.Note == nil || st.ID == 0 || seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		s.tabs = append(s.tabs, &Tab{
			ID:      st.ID,
			Title:   st.Title,
			Dirty:   st.Dirty,
			Note:    st.Note,
			Content: st.Content,
		})
	}
	active := snap.ActiveTabID
	if active != 0 && findTab(s.tabs, active) == nil {
		active = 0
	}
	if active == 0 && len(s.tabs) > 0 {
		active = s.tabs[len(s.tabs)-1].ID
	}
	s.activateLocked(active)
	s.searchQuery = snap.SearchQuery
	s.selectedTagIDs = snap.SelectedTagIDs
	s.sidebarOpen = snap.SidebarOpen
	s.offset = 0
	activeID := s.activeTabID
	s.mu.Unlock()

	s.LoadNotes(ctx)
	s.LoadTags(ctx)

	if activeID != 0 {
		note, err := s.repo.GetByID(ctx, activeID)
		if err != nil {
			s.logger.Warn("session: rehydrate refresh failed", slog.Int64("id", activeID), slog.String("error", err.Error()))
		} else {
			s.mu.Lock()
			if t := findTab(s.tabs, activeID); t != nil {
				t.Note = note
				t.Title = note.Title
				t.Dirty = t.Content != note.Content
			}
			s.mu.Unlock()
		}
	}

	s.persist()
}
