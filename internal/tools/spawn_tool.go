package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/spawn"
	"github.com/bashclaw/bashclaw/internal/util"
)

// RunSubagent executes task as a fresh logical sub-conversation and
// returns its final text. The agent engine supplies the concrete
// implementation so this package stays free of an engine dependency.
type RunSubagent func(ctx context.Context, task string) (string, error)

type spawnInput struct {
	Task  string `json:"task"`
	Label string `json:"label,omitempty"`
}

type spawnStatusInput struct {
	TaskID string `json:"task_id"`
}

// NewSpawnTool builds the "spawn" tool (§4.F.2): launches run in a
// detached goroutine, writing a "running" spawn record immediately and
// flipping it to "completed"/"error" on exit. The tool call itself
// returns as soon as the record is created.
func NewSpawnTool(store *spawn.Store, run RunSubagent) *Tool {
	return &Tool{
		Name:        "spawn",
		Description: "Launch an asynchronous subagent to work on a task; poll spawn_status for its result.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task":  map[string]any{"type": "string"},
				"label": map[string]any{"type": "string"},
			},
			"required": []string{"task"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return executeSpawn(ctx, store, run, raw)
		},
	}
}

func executeSpawn(ctx context.Context, store *spawn.Store, run RunSubagent, raw json.RawMessage) (*Result, error) {
	var in spawnInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid spawn input: %v", err)), nil
	}
	if in.Task == "" {
		return ErrorResult("task is required"), nil
	}

	id := util.NewID()
	if _, err := store.Start(id, in.Label); err != nil {
		return ErrorResult(fmt.Sprintf("spawn failed: %v", err)), nil
	}

	go func() {
		// Detached from the requesting connection's deadline; the
		// caller observes progress only via spawn_status.
		bgCtx := context.WithoutCancel(ctx)
		result, err := run(bgCtx, in.Task)
		if err != nil {
			if failErr := store.Fail(id, err.Error()); failErr != nil {
				slog.Warn("spawn: failed to record error status", "id", id, "error", failErr)
			}
			return
		}
		if completeErr := store.Complete(id, result); completeErr != nil {
			slog.Warn("spawn: failed to record completed status", "id", id, "error", completeErr)
		}
	}()

	out, _ := json.Marshal(map[string]string{"id": id, "status": "started"})
	return NewResult(string(out)), nil
}

// NewSpawnStatusTool builds the "spawn_status" tool (§4.F.2).
func NewSpawnStatusTool(store *spawn.Store) *Tool {
	return &Tool{
		Name:        "spawn_status",
		Description: "Check the status of a previously spawned subagent task.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{"type": "string"},
			},
			"required": []string{"task_id"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return executeSpawnStatus(store, raw)
		},
	}
}

func executeSpawnStatus(store *spawn.Store, raw json.RawMessage) (*Result, error) {
	var in spawnStatusInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid spawn_status input: %v", err)), nil
	}
	if in.TaskID == "" {
		return ErrorResult("task_id is required"), nil
	}

	rec, err := store.Get(in.TaskID)
	if err != nil {
		if bashclawerr.KindOf(err) == bashclawerr.NotFound {
			return ErrorResult("not found"), nil
		}
		return ErrorResult(fmt.Sprintf("spawn_status failed: %v", err)), nil
	}
	out, _ := json.Marshal(rec)
	return NewResult(string(out)), nil
}
