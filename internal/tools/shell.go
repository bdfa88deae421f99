package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// denyPatterns blocks the narrow set of genuinely destructive operations
// named in §4.D: wiping the filesystem, reformatting, or writing
// directly to a block device. Everything else is left to the model's
// judgment and the operator's deny list.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b.*\s/(\s|$)`),
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\s+/(\s|$)`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
}

const defaultShellTimeout = 30 * time.Second

type shellInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // seconds
	Cwd     string `json:"cwd,omitempty"`
}

type shellOutput struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

// NewShellTool builds the "shell" tool (§4.D): executes a single shell
// command and reports its combined output and exit code.
func NewShellTool() *Tool {
	return &Tool{
		Name:        "shell",
		Description: "Run a shell command and return its output and exit code.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "the command to run"},
				"timeout": map[string]any{"type": "integer", "description": "timeout in seconds, default 30"},
				"cwd":     map[string]any{"type": "string", "description": "working directory"},
			},
			"required": []string{"command"},
		},
		Handler: executeShell,
	}
}

func executeShell(ctx context.Context, raw json.RawMessage) (*Result, error) {
	var in shellInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid shell input: %v", err)), nil
	}
	if in.Command == "" {
		return ErrorResult("command is required"), nil
	}
	for _, p := range denyPatterns {
		if p.MatchString(in.Command) {
			return ErrorResult("command blocked by policy: matches a denied destructive pattern"), nil
		}
	}

	timeout := defaultShellTimeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", in.Command)
	if in.Cwd != "" {
		cmd.Dir = in.Cwd
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	exitCode := 0
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		exitCode = 124
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	out, _ := json.Marshal(shellOutput{Output: buf.String(), ExitCode: exitCode})
	return NewResult(string(out)), nil
}
