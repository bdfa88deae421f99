package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bashclaw/bashclaw/internal/sessions"
)

func TestSessionStatusTool_ReportsEntriesAndBytes(t *testing.T) {
	store, err := sessions.Open(t.TempDir(), sessions.ScopeGlobal)
	if err != nil {
		t.Fatalf("open sessions store: %v", err)
	}
	file := store.File("agent1", "", "")
	if err := store.Append(file, "user", "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}

	tool := NewSessionStatusTool(store, file)
	res, err := tool.Handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]int64
	json.Unmarshal([]byte(res.ForLLM), &out)
	if out["entries"] != 1 {
		t.Fatalf("expected 1 entry, got %+v", out)
	}
	if out["bytes"] <= 0 {
		t.Fatalf("expected non-zero bytes, got %+v", out)
	}
}
