package spawn

import (
	"testing"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store
}

func TestStore_StartThenGet(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.Start("id1", "label1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("expected running, got %s", rec.Status)
	}

	got, err := store.Get("id1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRunning || got.Label != "label1" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStore_Complete(t *testing.T) {
	store := openTestStore(t)
	store.Start("id1", "")
	if err := store.Complete("id1", "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := store.Get("id1")
	if got.Status != StatusCompleted || got.Result != "done" || got.CompletedAt == nil {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStore_Fail(t *testing.T) {
	store := openTestStore(t)
	store.Start("id1", "")
	if err := store.Fail("id1", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := store.Get("id1")
	if got.Status != StatusError || got.Error != "boom" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing")
	if bashclawerr.KindOf(err) != bashclawerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
