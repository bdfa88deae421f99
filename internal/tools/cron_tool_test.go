package tools

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bashclaw/bashclaw/internal/cron"
)

func openTestCronStore(t *testing.T) *cron.Store {
	t.Helper()
	store, err := cron.OpenStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("open cron store: %v", err)
	}
	return store
}

func TestCronTool_AddThenList(t *testing.T) {
	store := openTestCronStore(t)

	res, err := executeCron(store, json.RawMessage(`{"action":"add","id":"job1","schedule":"{\"kind\":\"every\",\"everyMs\":60000}","prompt":"ping"}`))
	if err != nil || res.IsError {
		t.Fatalf("add failed: %v %+v", err, res)
	}

	res, err = executeCron(store, json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var jobs []cron.Job
	json.Unmarshal([]byte(res.ForLLM), &jobs)
	if len(jobs) != 1 || jobs[0].ID != "job1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestCronTool_AddGeneratesIDWhenAbsent(t *testing.T) {
	store := openTestCronStore(t)
	res, err := executeCron(store, json.RawMessage(`{"action":"add","prompt":"ping"}`))
	if err != nil || res.IsError {
		t.Fatalf("add failed: %v %+v", err, res)
	}
	jobs, _ := store.List()
	if len(jobs) != 1 || jobs[0].ID == "" {
		t.Fatalf("expected a generated id, got %+v", jobs)
	}
}

func TestCronTool_Remove(t *testing.T) {
	store := openTestCronStore(t)
	executeCron(store, json.RawMessage(`{"action":"add","id":"job1","prompt":"ping"}`))

	res, err := executeCron(store, json.RawMessage(`{"action":"remove","id":"job1"}`))
	if err != nil || res.IsError {
		t.Fatalf("remove failed: %v %+v", err, res)
	}
	jobs, _ := store.List()
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs left, got %+v", jobs)
	}
}

func TestCronTool_AddMissingPrompt(t *testing.T) {
	store := openTestCronStore(t)
	res, err := executeCron(store, json.RawMessage(`{"action":"add"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error for missing prompt")
	}
}
