package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/memory"
)

type memoryInput struct {
	Action string   `json:"action"`
	Key    string   `json:"key,omitempty"`
	Value  string   `json:"value,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Query  string   `json:"query,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// NewMemoryTool builds the "memory" tool (§4.D) over an already-opened
// per-agent memory.Store, exposing set/get/delete/list/search as one
// action-dispatched tool.
func NewMemoryTool(store *memory.Store) *Tool {
	return &Tool{
		Name:        "memory",
		Description: "Store and recall durable key/value notes across sessions.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{"type": "string", "enum": []string{"set", "get", "delete", "list", "search"}},
				"key":    map[string]any{"type": "string"},
				"value":  map[string]any{"type": "string"},
				"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"query":  map[string]any{"type": "string"},
				"limit":  map[string]any{"type": "integer"},
			},
			"required": []string{"action"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return executeMemory(store, raw)
		},
	}
}

func executeMemory(store *memory.Store, raw json.RawMessage) (*Result, error) {
	var in memoryInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid memory input: %v", err)), nil
	}

	switch in.Action {
	case "set":
		if in.Key == "" {
			return ErrorResult("key is required for set"), nil
		}
		if err := store.Set(in.Key, in.Value, in.Tags); err != nil {
			return ErrorResult(fmt.Sprintf("memory set failed: %v", err)), nil
		}
		return NewResult(fmt.Sprintf("saved %q", in.Key)), nil

	case "get":
		if in.Key == "" {
			return ErrorResult("key is required for get"), nil
		}
		entry, err := store.Get(in.Key)
		if err != nil {
			if bashclawerr.KindOf(err) == bashclawerr.NotFound {
				return NewResult(fmt.Sprintf("no memory found for %q", in.Key)), nil
			}
			return ErrorResult(fmt.Sprintf("memory get failed: %v", err)), nil
		}
		out, _ := json.Marshal(entry)
		return NewResult(string(out)), nil

	case "delete":
		if in.Key == "" {
			return ErrorResult("key is required for delete"), nil
		}
		if err := store.Delete(in.Key); err != nil {
			return ErrorResult(fmt.Sprintf("memory delete failed: %v", err)), nil
		}
		return NewResult(fmt.Sprintf("deleted %q", in.Key)), nil

	case "list":
		entries, err := store.List(in.Limit)
		if err != nil {
			return ErrorResult(fmt.Sprintf("memory list failed: %v", err)), nil
		}
		out, _ := json.Marshal(entries)
		return NewResult(string(out)), nil

	case "search":
		if in.Query == "" {
			return ErrorResult("query is required for search"), nil
		}
		limit := in.Limit
		if limit <= 0 {
			limit = 10
		}
		results, err := store.SearchText(in.Query, limit)
		if err != nil {
			return ErrorResult(fmt.Sprintf("memory search failed: %v", err)), nil
		}
		out, _ := json.Marshal(results)
		return NewResult(string(out)), nil

	default:
		return ErrorResult(fmt.Sprintf("unknown memory action: %s", in.Action)), nil
	}
}
