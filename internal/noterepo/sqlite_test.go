package noterepo

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/noteforest/noteforest/internal/apperr"
)

func testRepo(t *testing.T) *SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "noteforest-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	repo, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, "First", "hello", []string{"go", "notes"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if note.ID <= 0 {
		t.Errorf("id = %d, want > 0", note.ID)
	}
	if note.Title != "First" || note.Content != "hello" {
		t.Errorf("note = %+v", note)
	}
	if len(note.Tags) != 2 {
		t.Fatalf("tags = %v, want 2", note.Tags)
	}

	got, err := repo.GetByID(ctx, note.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "First" || len(got.Tags) != 2 {
		t.Errorf("got = %+v", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "", "x", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty title: err = %v, want ErrValidation", err)
	}
	if _, err := repo.Create(ctx, strings.Repeat("a", 256), "x", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("long title: err = %v, want ErrValidation", err)
	}
	if _, err := repo.Create(ctx, "ok", "x", []string{strings.Repeat("t", 51)}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("long tag: err = %v, want ErrValidation", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := testRepo(t)
	if _, err := repo.GetByID(context.Background(), 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_PartialAndTagReplace(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, "Title", "content", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}

	// Content-only update leaves title and tags alone.
	content := "v2"
	got, err := repo.Update(ctx, note.ID, UpdateParams{Content: &content})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "Title" || got.Content != "v2" || len(got.Tags) != 2 {
		t.Errorf("got = %+v", got)
	}

	// TagNames fully replaces the tag set, not a merge.
	tags := []string{"c"}
	got, err = repo.Update(ctx, note.ID, UpdateParams{TagNames: &tags})
	if err != nil {
		t.Fatalf("Update tags: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "c" {
		t.Errorf("tags = %v, want [c]", got.Tags)
	}

	// Missing note.
	if _, err := repo.Update(ctx, 12345, UpdateParams{Content: &content}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTagsSharedByName(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	n1, err := repo.Create(ctx, "One", "", []string{"shared"})
	if err != nil {
		t.Fatal(err)
	}
	n2, err := repo.Create(ctx, "Two", "", []string{"shared"})
	if err != nil {
		t.Fatal(err)
	}
	if n1.Tags[0].ID != n2.Tags[0].ID {
		t.Errorf("tag ids differ: %d vs %d", n1.Tags[0].ID, n2.Tags[0].ID)
	}
}

func TestDelete(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	note, err := repo.Create(ctx, "Gone", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, note.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, note.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, note.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestList_SearchFilterPagination(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	var work *struct{ id int64 }
	for i, spec := range []struct {
		title, content string
		tags           []string
	}{
		{"Groceries", "milk and eggs", []string{"home"}},
		{"Meeting notes", "quarterly planning", []string{"work"}},
		{"Ideas", "a meeting of minds", nil},
	} {
		n, err := repo.Create(ctx, spec.title, spec.content, spec.tags)
		if err != nil {
			t.Fatal(err)
		}
		if i == 1 {
			work = &struct{ id int64 }{n.Tags[0].ID}
		}
		// SQLite DATETIME resolution can collapse rapid inserts; keep order
		// deterministic for the recency assertion below.
		time.Sleep(5 * time.Millisecond)
	}

	// Substring match against title OR content.
	res, err := repo.List(ctx, Query{Search: "meeting"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 2 || len(res.Notes) != 2 {
		t.Fatalf("search: total = %d, notes = %d", res.Total, len(res.Notes))
	}

	// Most-recently-updated first.
	res, err = repo.List(ctx, Query{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Notes[0].Title != "Ideas" {
		t.Errorf("first = %q, want most recently updated", res.Notes[0].Title)
	}

	// Tag filter.
	res, err = repo.List(ctx, Query{TagIDs: []int64{work.id}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Notes[0].Title != "Meeting notes" {
		t.Errorf("tag filter: %+v", res)
	}

	// Pagination: total ignores the page window.
	res, err = repo.List(ctx, Query{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Notes) != 2 || res.Total != 3 {
		t.Errorf("page 1: notes = %d, total = %d", len(res.Notes), res.Total)
	}
	res, err = repo.List(ctx, Query{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Notes) != 1 || res.Total != 3 {
		t.Errorf("page 2: notes = %d, total = %d", len(res.Notes), res.Total)
	}
}

func TestList_SearchMatchesWildcardsLiterally(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, spec := range []struct{ title, content string }{
		{"Progress", "50% done"},
		{"Other", "50 done"},
		{"Naming", "prefer snake_case here"},
		{"Decoy", "prefer snakeXcase here"},
	} {
		if _, err := repo.Create(ctx, spec.title, spec.content, nil); err != nil {
			t.Fatal(err)
		}
	}

	res, err := repo.List(ctx, Query{Search: "50%"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 || res.Notes[0].Title != "Progress" {
		t.Errorf("%% search: total = %d, notes = %+v", res.Total, res.Notes)
	}

	res, err = repo.List(ctx, Query{Search: "_case"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 || res.Notes[0].Title != "Naming" {
		t.Errorf("_ search: total = %d, notes = %+v", res.Total, res.Notes)
	}
}

func TestListTags_OrderedByName(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "N", "", []string{"zebra", "apple", "mango"}); err != nil {
		t.Fatal(err)
	}
	tags, err := repo.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	want := []string{"apple", "mango", "zebra"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v", tags)
	}
	for i, w := range want {
		if tags[i].Name != w {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i].Name, w)
		}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	hash, err := repo.PasswordHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty before setup", hash)
	}
	if err := repo.SetPasswordHash(ctx, "h1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetPasswordHash(ctx, "h2"); err != nil {
		t.Fatal(err)
	}
	hash, err = repo.PasswordHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "h2" {
		t.Errorf("hash = %q, want h2", hash)
	}
}
