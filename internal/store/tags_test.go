package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rcliao/context-memory/internal/model"
)

func TestTagIndexMatchesRebuild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := mustCreate(t, s, CreateParams{Content: "a", Tags: []string{"work", "urgent"}})
	b := mustCreate(t, s, CreateParams{Content: "b", Tags: []string{"work"}})
	c := mustCreate(t, s, CreateParams{Content: "c", Tags: []string{"home"}})

	tags := []string{"home", "errands"}
	if _, err := s.Update(ctx, b.ID, UpdateParams{Tags: &tags}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	live, err := s.TagIndex(ctx)
	if err != nil {
		t.Fatalf("tag index: %v", err)
	}
	mems, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	derived := BuildTagIndex(mems)
	if !reflect.DeepEqual(live, derived) {
		t.Fatalf("index drifted from records:\nlive    %v\nderived %v", live, derived)
	}

	n, err := s.RebuildTagIndex(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 memories indexed, got %d", n)
	}
	rebuilt, _ := s.TagIndex(ctx)
	if !reflect.DeepEqual(live, rebuilt) {
		t.Errorf("rebuild changed the index:\nbefore %v\nafter  %v", live, rebuilt)
	}

	want := map[string][]int64{
		"work":    {a.ID},
		"urgent":  {a.ID},
		"home":    {b.ID},
		"errands": {b.ID},
	}
	if !reflect.DeepEqual(live, want) {
		t.Errorf("expected %v, got %v", want, live)
	}
}

func TestRebuildRepairsIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := mustCreate(t, s, CreateParams{Content: "x", Tags: []string{"keep"}})
	if _, err := s.db.Exec(`DELETE FROM memory_tags`); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RebuildTagIndex(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	idx, _ := s.TagIndex(ctx)
	if !reflect.DeepEqual(idx, map[string][]int64{"keep": {m.ID}}) {
		t.Errorf("unexpected index after rebuild: %v", idx)
	}
}

func TestTagCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustCreate(t, s, CreateParams{Content: "a", Tags: []string{"work", "urgent"}})
	mustCreate(t, s, CreateParams{Content: "b", Tags: []string{"work"}})

	got, err := s.Tags(ctx)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	want := []TagCount{{Name: "urgent", Count: 1}, {Name: "work", Count: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCorruptTagsColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bad := mustCreate(t, s, CreateParams{Content: "bad", Tags: []string{"work"}})
	mustCreate(t, s, CreateParams{Content: "good", Tags: []string{"work"}})
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET tags = 'not json' WHERE id = ?`, bad.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, bad.ID); !errors.Is(err, model.ErrStorage) {
		t.Errorf("expected storage error on get, got %v", err)
	}
	if _, err := s.RebuildTagIndex(ctx); !errors.Is(err, model.ErrStorage) {
		t.Errorf("expected storage error on rebuild, got %v", err)
	}

	// The failed rebuild left the index untouched.
	idx, err := s.TagIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx["work"]) != 2 {
		t.Errorf("expected both memories still indexed, got %v", idx["work"])
	}

	res, err := s.Search(ctx, SearchParams{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || len(res.Memories) != 1 {
		t.Errorf("expected 1 skipped and 1 returned, got %d and %d", res.Skipped, len(res.Memories))
	}
}
