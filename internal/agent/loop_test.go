package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

func TestAdoptMessage_FallsBackWhenNoMessageField(t *testing.T) {
	if got := adoptMessage(json.RawMessage(`{}`), "original"); got != "original" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := adoptMessage(json.RawMessage(`{"message":"rewritten"}`), "original"); got != "rewritten" {
		t.Errorf("expected adopted message, got %q", got)
	}
}

func TestAdoptInput_NilWhenAbsent(t *testing.T) {
	if got := adoptInput(json.RawMessage(`{}`)); got != nil {
		t.Errorf("expected nil, got %s", got)
	}
	got := adoptInput(json.RawMessage(`{"input":{"x":1}}`))
	if string(got) != `{"x":1}` {
		t.Errorf("expected adopted input, got %s", got)
	}
}

func TestStringsFrom(t *testing.T) {
	if got := stringsFrom(nil); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
	got := stringsFrom([]any{"shell", "memory", 42})
	if len(got) != 2 || got[0] != "shell" || got[1] != "memory" {
		t.Errorf("expected string elements filtered, got %v", got)
	}
}

func TestIsOverflow(t *testing.T) {
	if isOverflow(nil) {
		t.Error("nil error should not be overflow")
	}
	if isOverflow(&providers.HTTPError{Status: 400, Body: `{"error":{"message":"bad request"}}`}) {
		t.Error("unrelated error body should not be overflow")
	}
	if !isOverflow(&providers.HTTPError{Status: 400, Body: `{"error":{"message":"request_too_large: reduce context"}}`}) {
		t.Error("request_too_large body should be detected as overflow")
	}
}

// fakeProvider answers one tool call then returns a final text reply,
// letting the builtin loop be exercised without a real network call.
type fakeProvider struct {
	calls int
}

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls++
	if p.calls == 1 {
		return &providers.ChatResponse{
			ToolCalls: []providers.ToolCall{{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"}}},
		}, nil
	}
	return &providers.ChatResponse{Content: "done"}, nil
}

func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func newLoopTestEngine(t *testing.T) (*Engine, *fakeProvider) {
	t.Helper()
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Set("agents.list", []any{
		map[string]any{"id": "a1", "provider": "fake", "maxTurns": float64(5)},
	}); err != nil {
		t.Fatal(err)
	}

	store, err := sessions.Open(t.TempDir(), sessions.ScopePerChannelPeer)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}

	disp, err := hooks.New(t.TempDir())
	if err != nil {
		t.Fatalf("open hooks: %v", err)
	}

	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:        "echo",
		Description: "echoes input back",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
			return tools.NewResult(string(input)), nil
		},
	})

	fp := &fakeProvider{}
	e := &Engine{
		Config:        cfg,
		Sessions:      store,
		Tools:         reg,
		Hooks:         disp,
		Providers:     map[string]providers.Provider{"fake": fp},
		WorkspaceRoot: func(string) string { return t.TempDir() },
	}
	return e, fp
}

func TestRunBuiltin_ExecutesToolThenReturnsFinalReply(t *testing.T) {
	e, fp := newLoopTestEngine(t)
	reply, err := e.Run(context.Background(), "a1", "please echo hi", "cli", "alice", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply != "done" {
		t.Errorf("expected final reply %q, got %q", "done", reply)
	}
	if fp.calls != 2 {
		t.Errorf("expected provider called twice (tool round + final), got %d", fp.calls)
	}
}

func TestRunBuiltin_NoProviderConfiguredIsAnError(t *testing.T) {
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	store, err := sessions.Open(t.TempDir(), sessions.ScopePerChannelPeer)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	disp, err := hooks.New(t.TempDir())
	if err != nil {
		t.Fatalf("open hooks: %v", err)
	}
	e := &Engine{
		Config:        cfg,
		Sessions:      store,
		Tools:         tools.NewRegistry(),
		Hooks:         disp,
		Providers:     map[string]providers.Provider{},
		WorkspaceRoot: func(string) string { return t.TempDir() },
	}
	if _, err := e.Run(context.Background(), "missing-agent", "hello", "cli", "bob", false); err == nil {
		t.Error("expected error when no provider is configured")
	}
}
