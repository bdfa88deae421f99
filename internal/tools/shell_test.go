package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestShell_RunsCommand(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{"command":"echo hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out shellOutput
	if err := json.Unmarshal([]byte(res.ForLLM), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if strings.TrimSpace(out.Output) != "hi" || out.ExitCode != 0 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestShell_NonZeroExit(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{"command":"exit 3"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out shellOutput
	json.Unmarshal([]byte(res.ForLLM), &out)
	if out.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", out.ExitCode)
	}
}

func TestShell_Timeout(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{"command":"sleep 5","timeout":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out shellOutput
	json.Unmarshal([]byte(res.ForLLM), &out)
	if out.ExitCode != 124 {
		t.Fatalf("expected exit code 124 on timeout, got %d", out.ExitCode)
	}
}

func TestShell_BlocksDestructivePattern(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{"command":"rm -rf /"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected rm -rf / to be blocked")
	}
}

func TestShell_MissingCommand(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error for missing command")
	}
}

func TestShell_RespectsCwd(t *testing.T) {
	res, err := executeShell(context.Background(), json.RawMessage(`{"command":"pwd","cwd":"/tmp"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out shellOutput
	json.Unmarshal([]byte(res.ForLLM), &out)
	if strings.TrimSpace(out.Output) != "/tmp" && strings.TrimSpace(out.Output) != "/private/tmp" {
		t.Fatalf("expected pwd to report /tmp, got %q", out.Output)
	}
}
