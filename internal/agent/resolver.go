package agent

import (
	"os/exec"
)

// EngineKind is the closed set of dispatch targets §4.F names.
type EngineKind string

const (
	EngineBuiltin EngineKind = "builtin"
	EngineClaude  EngineKind = "claude"
	EngineCodex   EngineKind = "codex"
)

// ResolveEngine reads the agent's configured engine; "auto" probes for
// available external CLIs and falls back to "builtin"; an unrecognized
// value also falls back to "builtin" (§4.F).
func (e *Engine) ResolveEngine(agentID string) EngineKind {
	v, _ := e.Config.AgentGet(agentID, "engine", "builtin").(string)
	switch v {
	case string(EngineBuiltin):
		return EngineBuiltin
	case string(EngineClaude):
		return EngineClaude
	case string(EngineCodex):
		return EngineCodex
	case "auto":
		return probeExternalEngine()
	default:
		return EngineBuiltin
	}
}

// probeExternalEngine checks for the external CLIs on PATH, preferring
// claude over codex, falling back to builtin if neither is installed.
func probeExternalEngine() EngineKind {
	if _, err := exec.LookPath("claude"); err == nil {
		return EngineClaude
	}
	if _, err := exec.LookPath("codex"); err == nil {
		return EngineCodex
	}
	return EngineBuiltin
}
