package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/hooks"
)

// claudeToolDenyNames maps bashclaw's own tool names to the equivalent
// Claude Code tool names, so an agent's deny list also disables the
// external CLI's native tools for the same concern.
var claudeToolDenyNames = map[string]string{
	"shell":      "Bash",
	"write_file": "Write",
	"read_file":  "Read",
	"list_files": "Glob",
	"web_fetch":  "WebFetch",
	"web_search": "WebSearch",
}

type claudeSettings struct {
	Hooks map[string][]claudeHookEntry `json:"hooks"`
}

type claudeHookEntry struct {
	Matcher string              `json:"matcher,omitempty"`
	Hooks   []claudeHookCommand `json:"hooks"`
}

type claudeHookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type claudeResult struct {
	Type      string `json:"type"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// runClaude dispatches a turn to the external `claude` CLI (§4.F.1):
// a per-run settings file wires PreCompact/PostToolUse back into this
// binary's hook bridge, the agent's deny list becomes --disallowedTools,
// a prior cc_session_id resumes the external session, and the CLI's
// JSON result is parsed back into a reply plus usage bookkeeping.
func (e *Engine) runClaude(ctx context.Context, agentID, sessionFile, message string) (string, error) {
	return e.runExternalCLI(ctx, "claude", agentID, sessionFile, message)
}

func (e *Engine) runExternalCLI(ctx context.Context, bin, agentID, sessionFile, message string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		self = "bashclaw"
	}

	settingsPath, err := e.writeExternalSettings(bin, self)
	if err != nil {
		return "", fmt.Errorf("agent: build %s settings: %w", bin, err)
	}
	defer os.Remove(settingsPath)

	_, _, deny := e.toolPolicyFor(agentID)
	disallowed := disallowedToolNames(deny)

	existingSessionID, _ := e.Sessions.MetaGet(sessionFile, bin+"_session_id", "")
	resumeID, _ := existingSessionID.(string)

	prompt := e.buildExternalPrompt(agentID, message)

	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--settings", settingsPath,
		"--setting-sources", "",
	}
	if len(disallowed) > 0 {
		args = append(args, "--disallowedTools", strings.Join(disallowed, ","))
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = e.WorkspaceRoot(agentID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var res claudeResult
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); jsonErr != nil {
		if runErr != nil {
			return "", fmt.Errorf("%s: %w: %s", bin, runErr, stderr.String())
		}
		return "", fmt.Errorf("%s: unparsable result: %s", bin, stderr.String())
	}
	if res.IsError {
		return "", fmt.Errorf("%s: %s", bin, res.Result)
	}

	if res.SessionID != "" {
		if resumeID == "" {
			startJSON, _ := json.Marshal(map[string]string{"agent_id": agentID, "engine": bin, "session_id": res.SessionID})
			e.fireVoid(ctx, hooks.EventSessionStart, startJSON)
		}
		if metaErr := e.Sessions.MetaUpdate(sessionFile, bin+"_session_id", res.SessionID); metaErr != nil {
			return res.Result, nil
		}
	}

	e.logUsage(bin, agentID, res.Usage.InputTokens, res.Usage.OutputTokens, res.TotalCostUSD)

	return res.Result, nil
}

// writeExternalSettings builds a per-run settings document wiring
// PreCompact and PostToolUse back into selfBinary's hook bridge
// subcommand, so bashclaw's own hooks fire for external-engine turns too.
func (e *Engine) writeExternalSettings(bin, selfBinary string) (string, error) {
	settings := claudeSettings{
		Hooks: map[string][]claudeHookEntry{
			"PreCompact": {{
				Hooks: []claudeHookCommand{{Type: "command", Command: fmt.Sprintf("%s hooks-bridge pre_compact", selfBinary)}},
			}},
			"PostToolUse": {{
				Hooks: []claudeHookCommand{{Type: "command", Command: fmt.Sprintf("%s hooks-bridge post_tool_use", selfBinary)}},
			}},
		},
	}
	body, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", bin+"-settings-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// buildExternalPrompt wraps message with the same bootstrap context a
// builtin-engine turn gets, inside a tagged block so the external CLI's
// own system prompt can't be confused with bashclaw's.
func (e *Engine) buildExternalPrompt(agentID, message string) string {
	context := e.BuildSystemPrompt(agentID, false, "")
	if context == "" {
		return message
	}
	return fmt.Sprintf("<bashclaw-context>\n%s\n</bashclaw-context>\n\n%s", context, message)
}

func disallowedToolNames(deny []string) []string {
	out := make([]string, 0, len(deny))
	for _, name := range deny {
		if mapped, ok := claudeToolDenyNames[name]; ok {
			out = append(out, mapped)
		}
	}
	return out
}

func (e *Engine) logUsage(engine, agentID string, inputTokens, outputTokens int, costUSD float64) {
	if e.UsageLogPath == "" {
		return
	}
	line, err := json.Marshal(map[string]any{
		"agent_id":      agentID,
		"engine":        engine,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"cost_usd":      costUSD,
		"at":            time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	f, err := os.OpenFile(e.UsageLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
