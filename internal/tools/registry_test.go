package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, input json.RawMessage) (*Result, error) {
			return NewResult(string(input)), nil
		},
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || res.ForLLM != `unknown tool: nope` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistry_ExecuteRoutesToHandler(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))
	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ForLLM != `{"a":1}` {
		t.Fatalf("got %q", res.ForLLM)
	}
}

func TestRegistry_BuildSpec_MinimalProfile(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"memory", "shell", "web_fetch", "session_status"} {
		r.Register(echoTool(name))
	}
	defs := r.BuildSpec(ProfileMinimal, nil, nil)
	var names []string
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 tools under minimal, got %v", names)
	}
	for _, want := range []string{"memory", "web_fetch", "session_status"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s in minimal profile, got %v", want, names)
		}
	}
}

func TestRegistry_BuildSpec_CodingIncludesShell(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"memory", "shell", "web_fetch", "session_status", "read_file"} {
		r.Register(echoTool(name))
	}
	if !r.IsAvailable("shell", ProfileCoding, nil, nil) {
		t.Fatalf("expected shell available under coding profile")
	}
	if r.IsAvailable("shell", ProfileMinimal, nil, nil) {
		t.Fatalf("expected shell unavailable under minimal profile")
	}
}

func TestRegistry_AllowUnionsWithProfile(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"memory", "shell"} {
		r.Register(echoTool(name))
	}
	// shell isn't in minimal, but allow adds it back (union, not intersection).
	if !r.IsAvailable("shell", ProfileMinimal, []string{"shell"}, nil) {
		t.Fatalf("expected allow to union with profile")
	}
}

func TestRegistry_DenySubtractedLast(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("memory"))
	if r.IsAvailable("memory", ProfileMinimal, []string{"memory"}, []string{"memory"}) {
		t.Fatalf("expected deny to win over allow+profile")
	}
}

func TestRegistry_FullProfileNoRestriction(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("anything"))
	if !r.IsAvailable("anything", ProfileFull, nil, nil) {
		t.Fatalf("expected full profile to allow any registered tool")
	}
}

func TestRegistry_UnregisteredNeverAvailable(t *testing.T) {
	r := NewRegistry()
	if r.IsAvailable("web_search", ProfileFull, nil, nil) {
		t.Fatalf("web_search has no handler and must never be available")
	}
}
