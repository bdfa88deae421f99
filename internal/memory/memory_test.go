package memory

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("greeting", "hello world", []string{"demo"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("greeting")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "hello world" {
		t.Errorf("Value = %q, want %q", got.Value, "hello world")
	}
	if len(got.Tags) != 1 || got.Tags[0] != "demo" {
		t.Errorf("Tags = %v, want [demo]", got.Tags)
	}

	if err := s.Delete("greeting"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("greeting"); err == nil {
		t.Error("expected not-found error after delete")
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestStore_Set_EmptyKeyRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("", "value", nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestStore_Set_LastWriterWins(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", "first", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", "second", nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "second" {
		t.Errorf("Value = %q, want %q", got.Value, "second")
	}
	if got.Created.IsZero() {
		t.Error("Created should be preserved across overwrite")
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	s.Set("b", "2", nil)
	s.Set("a", "1", nil)
	s.Set("c", "3", nil)

	entries, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Key != "a" || entries[1].Key != "b" || entries[2].Key != "c" {
		t.Errorf("entries not sorted by key: %v", entries)
	}

	limited, err := s.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d entries, want 2", len(limited))
	}
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)
	s.Set("pizza-recipe", "dough, tomato sauce, mozzarella", []string{"food"})
	s.Set("todo-list", "buy milk", []string{"chores"})

	if _, err := s.Search(""); err == nil {
		t.Error("expected error for empty query")
	}

	hits, err := s.Search("mozzarella")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key != "pizza-recipe" {
		t.Errorf("Search(mozzarella) = %v, want [pizza-recipe]", hits)
	}

	hits, err = s.Search("food")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key != "pizza-recipe" {
		t.Errorf("Search(food) by tag = %v, want [pizza-recipe]", hits)
	}
}

func TestStore_SearchText_Scoring(t *testing.T) {
	s := newTestStore(t)
	// query token "pizza" appears in the key of one entry (2pts) and the
	// value of another (1pt) and as a tag of a third (0.5pt).
	s.Set("pizza-night", "what to cook tonight", nil)
	s.Set("dinner-plan", "maybe pizza from the place downtown", nil)
	s.Set("cuisine-notes", "italian food is great", []string{"pizza"})

	results, err := s.SearchText("pizza", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Entry.Key != "pizza-night" || results[0].Score != 2 {
		t.Errorf("top result = %+v, want pizza-night score 2", results[0])
	}
	if results[1].Entry.Key != "dinner-plan" || results[1].Score != 1 {
		t.Errorf("second result = %+v, want dinner-plan score 1", results[1])
	}
	if results[2].Entry.Key != "cuisine-notes" || results[2].Score != 0.5 {
		t.Errorf("third result = %+v, want cuisine-notes score 0.5", results[2])
	}
}

func TestStore_SearchText_EmptyQueryRejected(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SearchText("", 0); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestStore_ExportImport(t *testing.T) {
	s := newTestStore(t)
	s.Set("a", "1", []string{"x"})
	s.Set("b", "2", nil)

	data, err := s.Export()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	exportPath := filepath.Join(dir, "export.json")
	if err := writeFile(exportPath, data); err != nil {
		t.Fatal(err)
	}

	s2 := newTestStore(t)
	n, err := s2.Import(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Import returned %d, want 2", n)
	}

	got, err := s2.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "1" {
		t.Errorf("Value = %q, want %q", got.Value, "1")
	}
}

func TestStore_Compact_DropsUnreadable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Set("good", "value", nil)
	if err := writeFile(filepath.Join(dir, "garbage.json"), []byte("not json")); err != nil {
		t.Fatal(err)
	}

	dropped, err := s.Compact()
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Errorf("Compact dropped %d, want 1", dropped)
	}

	if _, err := s.Get("good"); err != nil {
		t.Errorf("good entry should survive compaction: %v", err)
	}
}

func TestStore_SyncWorkspace_And_SearchWorkspace(t *testing.T) {
	s := newTestStore(t)
	s.Set("recipe", "tomato and basil", []string{"cooking"})
	s.Set("reminder", "call the dentist", []string{"health"})

	workspace := t.TempDir()
	if err := s.SyncWorkspace(workspace); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchWorkspace(workspace, "cooking")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Section != "cooking" {
		t.Errorf("SearchWorkspace(cooking) = %v, want section cooking", hits)
	}
}

func TestStore_SearchAll_Merges(t *testing.T) {
	s := newTestStore(t)
	s.Set("kv-match", "contains the word lighthouse", nil)

	workspace := t.TempDir()
	if err := writeFile(filepath.Join(workspace, "MEMORY.md"), []byte("## lighthouse\n\nkeep watch\n")); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchAll(workspace, "lighthouse", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (one entry, one workspace)", len(results))
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}
