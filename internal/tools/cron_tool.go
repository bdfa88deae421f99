package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/util"
)

type cronInput struct {
	Action        string `json:"action"`
	ID            string `json:"id,omitempty"`
	Schedule      string `json:"schedule,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
	SessionTarget string `json:"sessionTarget,omitempty"`
}

// NewCronTool builds the "cron" tool (§4.D): add/remove/list scheduled
// jobs against an already-opened cron.Store. Job execution itself is
// owned by the cron.Runner, started independently of the tool call.
func NewCronTool(store *cron.Store) *Tool {
	return &Tool{
		Name:        "cron",
		Description: "Schedule, list, or remove recurring prompts for this agent.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action":        map[string]any{"type": "string", "enum": []string{"add", "remove", "list"}},
				"id":            map[string]any{"type": "string"},
				"schedule":      map[string]any{"type": "string", "description": "a JSON object with kind \"at\" (at), \"every\" (everyMs) or \"cron\" (expr), or a bare five-field crontab expression"},
				"prompt":        map[string]any{"type": "string"},
				"sessionTarget": map[string]any{"type": "string"},
			},
			"required": []string{"action"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return executeCron(store, raw)
		},
	}
}

func executeCron(store *cron.Store, raw json.RawMessage) (*Result, error) {
	var in cronInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid cron input: %v", err)), nil
	}

	switch in.Action {
	case "add":
		if in.Prompt == "" {
			return ErrorResult("prompt is required for add"), nil
		}
		id := in.ID
		if id == "" {
			id = util.NewID()
		}
		spec := cron.ParseSchedule(in.Schedule)
		if err := store.Add(id, spec, in.Prompt, in.SessionTarget); err != nil {
			return ErrorResult(fmt.Sprintf("cron add failed: %v", err)), nil
		}
		return NewResult(fmt.Sprintf("scheduled job %q", id)), nil

	case "remove":
		if in.ID == "" {
			return ErrorResult("id is required for remove"), nil
		}
		n, err := store.Remove(in.ID)
		if err != nil {
			return ErrorResult(fmt.Sprintf("cron remove failed: %v", err)), nil
		}
		return NewResult(fmt.Sprintf("removed %d job(s) with id %q", n, in.ID)), nil

	case "list":
		jobs, err := store.List()
		if err != nil {
			return ErrorResult(fmt.Sprintf("cron list failed: %v", err)), nil
		}
		out, _ := json.Marshal(jobs)
		return NewResult(string(out)), nil

	default:
		return ErrorResult(fmt.Sprintf("unknown cron action: %s", in.Action)), nil
	}
}
