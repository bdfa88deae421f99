package cron

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "cron.json"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return s
}

func TestStore_AddAndList(t *testing.T) {
	s := openTestStore(t)
	if err := s.Add("job-1", ScheduleSpec{Kind: KindEvery, EveryMs: 60000}, "do the thing", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	jobs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" || !jobs[0].Enabled {
		t.Errorf("List = %+v, want one enabled job-1", jobs)
	}
}

func TestStore_AddPermitsDuplicateIDs(t *testing.T) {
	s := openTestStore(t)
	if err := s.Add("dup", ScheduleSpec{Kind: KindEvery, EveryMs: 1000}, "first", ""); err != nil {
		t.Fatalf("Add 1: %v", err)
	}
	if err := s.Add("dup", ScheduleSpec{Kind: KindEvery, EveryMs: 2000}, "second", ""); err != nil {
		t.Fatalf("Add 2: %v", err)
	}
	jobs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("List = %d jobs, want 2 duplicates preserved", len(jobs))
	}
}

func TestStore_RemoveDropsAllMatching(t *testing.T) {
	s := openTestStore(t)
	s.Add("dup", ScheduleSpec{Kind: KindEvery, EveryMs: 1000}, "first", "")
	s.Add("dup", ScheduleSpec{Kind: KindEvery, EveryMs: 2000}, "second", "")
	s.Add("other", ScheduleSpec{Kind: KindEvery, EveryMs: 3000}, "third", "")

	removed, err := s.Remove("dup")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 2 {
		t.Errorf("Remove returned %d, want 2", removed)
	}
	jobs, _ := s.List()
	if len(jobs) != 1 || jobs[0].ID != "other" {
		t.Errorf("List after remove = %+v, want only 'other'", jobs)
	}
}

func TestStore_RemoveNoMatch(t *testing.T) {
	s := openTestStore(t)
	s.Add("keep", ScheduleSpec{Kind: KindEvery, EveryMs: 1000}, "x", "")
	removed, err := s.Remove("missing")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 0 {
		t.Errorf("Remove = %d, want 0", removed)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cron.json")
	s1, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := s1.Add("job-1", ScheduleSpec{Kind: KindCron, Expr: "* * * * *"}, "p", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s2, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen OpenStore: %v", err)
	}
	jobs, err := s2.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("List after reopen = %+v, want job-1 to persist", jobs)
	}
}

func TestStore_Update(t *testing.T) {
	s := openTestStore(t)
	s.Add("job-1", ScheduleSpec{Kind: KindEvery, EveryMs: 1000}, "p", "")
	jobs, _ := s.List()
	updated := jobs[0]
	updated.Failures = 3
	updated.LastRunAt = 12345
	if err := s.update(0, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	jobs, _ = s.List()
	if jobs[0].Failures != 3 || jobs[0].LastRunAt != 12345 {
		t.Errorf("after update = %+v, want Failures=3 LastRunAt=12345", jobs[0])
	}
}

func TestStore_UpdateOutOfRange(t *testing.T) {
	s := openTestStore(t)
	s.Add("job-1", ScheduleSpec{Kind: KindEvery, EveryMs: 1000}, "p", "")
	if err := s.update(5, Job{}); err == nil {
		t.Error("update with out-of-range index should error")
	}
}
