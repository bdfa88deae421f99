// Package tools implements the tool registry (§4.D): declared
// {name, description, input_schema, handler} tools, profile/allow/deny
// filtering, and dispatch.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bashclaw/bashclaw/internal/providers"
)

// Handler executes one tool invocation given its raw JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (*Result, error)

// Tool is one registry entry.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

// Registry holds every registered tool, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get looks up a tool by exact name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// toProviderDef converts a Tool into the provider-facing schema shape.
func toProviderDef(t *Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		},
	}
}

// BuildSpec returns the tool specs available under profile with allow/deny
// applied (§4.D). allow/deny are exact tool names, not groups.
func (r *Registry) BuildSpec(profile string, allow, deny []string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []providers.ToolDefinition
	for name, t := range r.tools {
		if r.isAvailableLocked(name, profile, allow, deny) {
			defs = append(defs, toProviderDef(t))
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// IsAvailable reports whether name passes profile+allow+deny filtering.
func (r *Registry) IsAvailable(name, profile string, allow, deny []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isAvailableLocked(name, profile, allow, deny)
}

func (r *Registry) isAvailableLocked(name, profile string, allow, deny []string) bool {
	if _, ok := r.tools[name]; !ok {
		return false
	}

	inProfile := inProfileSet(name, profile)
	inAllow := len(allow) > 0 && contains(allow, name)

	var available bool
	if len(allow) > 0 {
		// Most permissive combination of profile+allow is kept.
		available = inProfile || inAllow
	} else {
		available = inProfile
	}
	if available && contains(deny, name) {
		available = false
	}
	return available
}

// Execute validates name and routes to its handler; an unknown tool
// yields an error Result rather than a Go error, matching §4.D's
// {"error":"unknown tool: <name>"} contract.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (*Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name)), nil
	}
	return t.Handler(ctx, input)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
