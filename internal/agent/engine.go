// Package agent implements the agent execution engine (§4.F): prompt
// assembly, the builtin tool loop, engine dispatch (builtin/claude/
// codex), and subagent spawning with status tracking.
package agent

import (
	"context"

	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

// maxSpawnDepth caps recursive subagent spawning (SPEC_FULL.md §3.F).
const maxSpawnDepth = 3

const defaultMaxTurns = 50

// Engine wires together every subsystem a single run() call touches:
// config lookup, the session store, the tool registry, the hook
// dispatcher, and the set of configured providers.
type Engine struct {
	Config    *config.Store
	Sessions  *sessions.Store
	Tools     *tools.Registry
	Hooks     *hooks.Dispatcher
	Providers map[string]providers.Provider

	WorkspaceRoot func(agentID string) string
	UsageLogPath  string
}

// New builds an Engine from already-opened subsystems.
func New(cfg *config.Store, sess *sessions.Store, reg *tools.Registry, disp *hooks.Dispatcher, provs map[string]providers.Provider, workspaceRoot func(string) string, usageLogPath string) *Engine {
	return &Engine{
		Config:        cfg,
		Sessions:      sess,
		Tools:         reg,
		Hooks:         disp,
		Providers:     provs,
		WorkspaceRoot: workspaceRoot,
		UsageLogPath:  usageLogPath,
	}
}

func (e *Engine) maxTurns(agentID string) int {
	v := e.Config.AgentGet(agentID, "maxTurns", defaultMaxTurns)
	if n, ok := v.(float64); ok && n > 0 {
		return int(n)
	}
	if n, ok := v.(int); ok && n > 0 {
		return n
	}
	return defaultMaxTurns
}

func (e *Engine) providerFor(agentID string) providers.Provider {
	name, _ := e.Config.AgentGet(agentID, "provider", "anthropic").(string)
	if p, ok := e.Providers[name]; ok {
		return p
	}
	for _, p := range e.Providers {
		return p
	}
	return nil
}

func (e *Engine) modelFor(agentID string) string {
	if m, ok := e.Config.AgentGet(agentID, "model", "").(string); ok && m != "" {
		return m
	}
	return ""
}

func (e *Engine) sessionFile(agentID, channel, sender string) string {
	return e.Sessions.File(agentID, channel, sender)
}

func (e *Engine) spawnDepth(ctx context.Context) int {
	if v, ok := ctx.Value(spawnDepthKey{}).(int); ok {
		return v
	}
	return 0
}

type spawnDepthKey struct{}

func withSpawnDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, spawnDepthKey{}, depth)
}
