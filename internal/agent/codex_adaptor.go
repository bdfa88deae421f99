package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bashclaw/bashclaw/internal/hooks"
)

// codexResult mirrors the claude adaptor's result shape but under the
// codex CLI's own field names (§3.F supplement).
type codexResult struct {
	Type      string `json:"type"`
	IsError   bool   `json:"is_error"`
	Output    string `json:"output"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// runCodex dispatches a turn to the external `codex` CLI. It mirrors
// runClaude's settings-file, --resume, and JSON-result-parsing shape,
// adjusted for codex's documented result fields.
func (e *Engine) runCodex(ctx context.Context, agentID, sessionFile, message string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		self = "bashclaw"
	}

	settingsPath, err := e.writeExternalSettings("codex", self)
	if err != nil {
		return "", fmt.Errorf("agent: build codex settings: %w", err)
	}
	defer os.Remove(settingsPath)

	_, _, deny := e.toolPolicyFor(agentID)
	disallowed := disallowedToolNames(deny)

	existingSessionID, _ := e.Sessions.MetaGet(sessionFile, "codex_session_id", "")
	resumeID, _ := existingSessionID.(string)

	prompt := e.buildExternalPrompt(agentID, message)

	args := []string{
		"exec", prompt,
		"--json",
		"--settings", settingsPath,
	}
	if len(disallowed) > 0 {
		args = append(args, "--disallowedTools", strings.Join(disallowed, ","))
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}

	cmd := exec.CommandContext(ctx, "codex", args...)
	cmd.Dir = e.WorkspaceRoot(agentID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var res codexResult
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); jsonErr != nil {
		if runErr != nil {
			return "", fmt.Errorf("codex: %w: %s", runErr, stderr.String())
		}
		return "", fmt.Errorf("codex: unparsable result: %s", stderr.String())
	}
	if res.IsError {
		return "", fmt.Errorf("codex: %s", res.Output)
	}

	if res.SessionID != "" {
		if resumeID == "" {
			startJSON, _ := json.Marshal(map[string]string{"agent_id": agentID, "engine": "codex", "session_id": res.SessionID})
			e.fireVoid(ctx, hooks.EventSessionStart, startJSON)
		}
		if metaErr := e.Sessions.MetaUpdate(sessionFile, "codex_session_id", res.SessionID); metaErr != nil {
			return res.Output, nil
		}
	}

	e.logUsage("codex", agentID, res.Usage.InputTokens, res.Usage.OutputTokens, 0)

	return res.Output, nil
}
