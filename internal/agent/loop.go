package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

const defaultMaxHistory = 50

// Run executes one full agent turn (§4.F): fires the lifecycle hooks
// around the resolved engine's dispatch, persists the turn to the
// session, and returns the assistant's reply text.
func (e *Engine) Run(ctx context.Context, agentID, message, channel, sender string, isSubagent bool) (string, error) {
	sessionFile := e.sessionFile(agentID, channel, sender)

	baseEvent := map[string]string{"agent_id": agentID, "message": message, "channel": channel, "sender": sender}
	baseJSON, _ := json.Marshal(baseEvent)
	e.fireVoid(ctx, hooks.EventBeforeAgentStart, baseJSON)

	preOut, err := e.Hooks.Run(ctx, hooks.EventPreMessage, baseJSON)
	if err != nil {
		return "", err
	}
	message = adoptMessage(preOut, message)

	if err := e.Sessions.Append(sessionFile, "user", message); err != nil {
		return "", err
	}

	engineKind := e.ResolveEngine(agentID)
	var assistantText string
	switch engineKind {
	case EngineClaude:
		assistantText, err = e.runClaude(ctx, agentID, sessionFile, message)
	case EngineCodex:
		assistantText, err = e.runCodex(ctx, agentID, sessionFile, message)
	default:
		assistantText, err = e.runBuiltin(ctx, agentID, sessionFile, message, isSubagent)
	}
	if err != nil {
		return "", err
	}

	if err := e.Sessions.Append(sessionFile, "assistant", assistantText); err != nil {
		slog.Warn("agent: failed to persist assistant turn", "agent", agentID, "error", err)
	}

	postJSON, _ := json.Marshal(map[string]string{"agent_id": agentID, "text": assistantText})
	e.fireVoid(ctx, hooks.EventPostMessage, postJSON)
	e.fireVoid(ctx, hooks.EventAgentEnd, baseJSON)

	return assistantText, nil
}

func (e *Engine) fireVoid(ctx context.Context, event hooks.Event, input json.RawMessage) {
	if _, err := e.Hooks.Run(ctx, event, input); err != nil {
		slog.Warn("agent: hook failed", "event", event, "error", err)
	}
}

func adoptMessage(out json.RawMessage, fallback string) string {
	var wrapper struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(out, &wrapper); err == nil && wrapper.Message != "" {
		return wrapper.Message
	}
	return fallback
}

// runBuiltin implements §4.F's builtin tool loop.
func (e *Engine) runBuiltin(ctx context.Context, agentID, sessionFile, message string, isSubagent bool) (string, error) {
	provider := e.providerFor(agentID)
	if provider == nil {
		return "", fmt.Errorf("no provider configured for agent %s", agentID)
	}

	systemPrompt := e.BuildSystemPrompt(agentID, isSubagent, "")
	msgs, err := e.BuildMessages(sessionFile, message, defaultMaxHistory)
	if err != nil {
		return "", err
	}
	if systemPrompt != "" {
		msgs = append([]providers.Message{{Role: "system", Content: systemPrompt}}, msgs...)
	}

	profile, allow, deny := e.toolPolicyFor(agentID)
	toolDefs := e.Tools.BuildSpec(profile, allow, deny)

	model := e.modelFor(agentID)
	maxTurns := e.maxTurns(agentID)

	retriedOverflow := false
	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := provider.Chat(ctx, providers.ChatRequest{Messages: msgs, Tools: toolDefs, Model: model})
		if err != nil {
			if !retriedOverflow && isOverflow(err) {
				retriedOverflow = true
				if compactErr := e.compactSession(ctx, agentID, sessionFile); compactErr != nil {
					return "", err
				}
				msgs, err = e.BuildMessages(sessionFile, message, defaultMaxHistory)
				if err != nil {
					return "", err
				}
				if systemPrompt != "" {
					msgs = append([]providers.Message{{Role: "system", Content: systemPrompt}}, msgs...)
				}
				continue
			}
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		msgs = append(msgs, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := e.executeTool(ctx, agentID, call)
			msgs = append(msgs, providers.Message{Role: "tool", Content: result, ToolCallID: call.ID})
		}
	}
	return "", nil
}

// executeTool fires pre_tool (modifying) and post_tool (void) around a
// single tool call, per §4.F's builtin tool loop.
func (e *Engine) executeTool(ctx context.Context, agentID string, call providers.ToolCall) string {
	args, _ := json.Marshal(call.Arguments)
	preInput, _ := json.Marshal(map[string]any{"agent_id": agentID, "tool": call.Name, "input": json.RawMessage(args)})

	preOut, err := e.Hooks.Run(ctx, hooks.EventPreTool, preInput)
	if err != nil {
		return fmt.Sprintf(`{"error":"pre_tool hook blocked call: %v"}`, err)
	}
	input := args
	if adopted := adoptInput(preOut); adopted != nil {
		input = adopted
	}

	result, err := e.Tools.Execute(ctx, call.Name, input)
	var forLLM string
	if err != nil {
		forLLM = fmt.Sprintf(`{"error":%q}`, err.Error())
	} else {
		forLLM = result.ForLLM
	}

	postInput, _ := json.Marshal(map[string]any{"agent_id": agentID, "tool": call.Name, "result": forLLM})
	e.fireVoid(ctx, hooks.EventPostTool, postInput)

	return forLLM
}

func adoptInput(out json.RawMessage) json.RawMessage {
	var wrapper struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(out, &wrapper); err == nil && len(wrapper.Input) > 0 {
		return wrapper.Input
	}
	return nil
}

func (e *Engine) compactSession(ctx context.Context, agentID, sessionFile string) error {
	provider := e.providerFor(agentID)
	if provider == nil {
		return fmt.Errorf("no provider configured for agent %s", agentID)
	}
	model := e.modelFor(agentID)
	summarizer := func(ctx context.Context, model string, entries []sessions.Entry) (string, error) {
		var transcript string
		for _, en := range entries {
			transcript += fmt.Sprintf("%s: %s\n", en.Role, en.Content)
		}
		resp, err := provider.Chat(ctx, providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: "Summarize the following conversation concisely, preserving facts and decisions."},
				{Role: "user", Content: transcript},
			},
			Model: model,
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	return e.Sessions.Compact(ctx, sessionFile, model, summarizer)
}

func (e *Engine) toolPolicyFor(agentID string) (profile string, allow, deny []string) {
	profile, _ = e.Config.AgentGet(agentID, "tools.profile", tools.ProfileFull).(string)
	allow = stringsFrom(e.Config.AgentGet(agentID, "tools.allow", nil))
	deny = stringsFrom(e.Config.AgentGet(agentID, "tools.deny", nil))
	return profile, allow, deny
}

// isOverflow reports whether err represents a provider context-window
// overflow (§4.B detect_overflow), inspecting the raw response body
// when the provider surfaced one.
func isOverflow(err error) bool {
	httpErr, ok := err.(*providers.HTTPError)
	if !ok {
		return false
	}
	return sessions.DetectOverflow([]byte(httpErr.Body))
}

func stringsFrom(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
