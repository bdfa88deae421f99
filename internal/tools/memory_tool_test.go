package tools

import (
	"encoding/json"
	"testing"

	"github.com/bashclaw/bashclaw/internal/memory"
)

func openTestMemory(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryTool_SetThenGet(t *testing.T) {
	store := openTestMemory(t)

	res, err := executeMemory(store, json.RawMessage(`{"action":"set","key":"k1","value":"v1"}`))
	if err != nil || res.IsError {
		t.Fatalf("set failed: %v %+v", err, res)
	}

	res, err = executeMemory(store, json.RawMessage(`{"action":"get","key":"k1"}`))
	if err != nil || res.IsError {
		t.Fatalf("get failed: %v %+v", err, res)
	}
	var entry memory.Entry
	if err := json.Unmarshal([]byte(res.ForLLM), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Value != "v1" {
		t.Fatalf("got %q", entry.Value)
	}
}

func TestMemoryTool_GetMissingKeyIsNotAnError(t *testing.T) {
	store := openTestMemory(t)
	res, err := executeMemory(store, json.RawMessage(`{"action":"get","key":"missing"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("missing key should not be an error result")
	}
}

func TestMemoryTool_UnknownAction(t *testing.T) {
	store := openTestMemory(t)
	res, err := executeMemory(store, json.RawMessage(`{"action":"bogus"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error for unknown action")
	}
}

func TestMemoryTool_DeleteThenList(t *testing.T) {
	store := openTestMemory(t)
	executeMemory(store, json.RawMessage(`{"action":"set","key":"a","value":"1"}`))
	executeMemory(store, json.RawMessage(`{"action":"set","key":"b","value":"2"}`))
	executeMemory(store, json.RawMessage(`{"action":"delete","key":"a"}`))

	res, err := executeMemory(store, json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var entries []*memory.Entry
	json.Unmarshal([]byte(res.ForLLM), &entries)
	if len(entries) != 1 || entries[0].Key != "b" {
		t.Fatalf("unexpected list result: %+v", entries)
	}
}
