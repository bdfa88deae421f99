package agent

import (
	"path/filepath"
	"testing"

	"github.com/bashclaw/bashclaw/internal/config"
)

func TestResolveEngine_ExplicitValues(t *testing.T) {
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Set("agents.list", []any{
		map[string]any{"id": "builtin-agent", "engine": "builtin"},
		map[string]any{"id": "claude-agent", "engine": "claude"},
		map[string]any{"id": "codex-agent", "engine": "codex"},
		map[string]any{"id": "weird-agent", "engine": "quantum"},
	}); err != nil {
		t.Fatal(err)
	}
	e := &Engine{Config: cfg}

	cases := map[string]EngineKind{
		"builtin-agent": EngineBuiltin,
		"claude-agent":  EngineClaude,
		"codex-agent":   EngineCodex,
		"weird-agent":   EngineBuiltin,
		"unknown-agent": EngineBuiltin,
	}
	for agentID, want := range cases {
		if got := e.ResolveEngine(agentID); got != want {
			t.Errorf("ResolveEngine(%q) = %q, want %q", agentID, got, want)
		}
	}
}

func TestResolveEngine_AutoReturnsKnownKind(t *testing.T) {
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Set("agents.list", []any{
		map[string]any{"id": "auto-agent", "engine": "auto"},
	}); err != nil {
		t.Fatal(err)
	}
	e := &Engine{Config: cfg}

	got := e.ResolveEngine("auto-agent")
	if got != EngineBuiltin && got != EngineClaude && got != EngineCodex {
		t.Fatalf("ResolveEngine(auto) returned unexpected kind %q", got)
	}
}
