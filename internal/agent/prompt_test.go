package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bashclaw/bashclaw/internal/bootstrap"
	"github.com/bashclaw/bashclaw/internal/config"
)

func newTestEngine(t *testing.T, workspaceDir string) *Engine {
	t.Helper()
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	return &Engine{
		Config:        cfg,
		WorkspaceRoot: func(string) string { return workspaceDir },
	}
}

func TestBuildSystemPrompt_IncludesConfiguredAndBootstrap(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, bootstrap.IdentityFile), []byte("You are Botty."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, bootstrap.SoulFile), []byte("Be curious."), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, dir)
	if err := e.Config.Set("agents.list", []any{
		map[string]any{"id": "a1", "systemPrompt": "Custom instructions."},
	}); err != nil {
		t.Fatal(err)
	}

	prompt := e.BuildSystemPrompt("a1", false, "")
	if !strings.Contains(prompt, "Custom instructions.") {
		t.Errorf("expected configured systemPrompt in output, got %q", prompt)
	}
	if !strings.Contains(prompt, "[Identity]\nYou are Botty.") {
		t.Errorf("expected labelled identity block, got %q", prompt)
	}
	if !strings.Contains(prompt, "[Soul]\nBe curious.") {
		t.Errorf("expected labelled soul block for non-subagent, got %q", prompt)
	}
	if !strings.Contains(prompt, "Memory recall:") {
		t.Errorf("expected memory recall guidance for non-subagent, got %q", prompt)
	}
}

func TestBuildSystemPrompt_SubagentSkipsSoulAndMemoryRecall(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, bootstrap.SoulFile), []byte("Be curious."), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, dir)
	prompt := e.BuildSystemPrompt("a1", true, "")
	if strings.Contains(prompt, "Soul") {
		t.Errorf("subagent prompt should skip SOUL.md, got %q", prompt)
	}
	if strings.Contains(prompt, "Memory recall:") {
		t.Errorf("subagent prompt should skip memory recall guidance, got %q", prompt)
	}
}

func TestBuildSystemPrompt_EmptyBootstrapFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, bootstrap.UserFile), []byte("   \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, dir)
	prompt := e.BuildSystemPrompt("a1", false, "")
	if strings.Contains(prompt, "[User]") {
		t.Errorf("blank bootstrap file should be skipped, got %q", prompt)
	}
}
