package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/sessions"
)

// NewSessionStatusTool builds the "session_status" tool (§4.D), part of
// the "minimal" profile: reports the current session's entry count and
// byte size without exposing its contents.
func NewSessionStatusTool(store *sessions.Store, file string) *Tool {
	return &Tool{
		Name:        "session_status",
		Description: "Report the current conversation session's entry count and size.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			entries, bytes, err := store.Stats(file)
			if err != nil {
				return ErrorResult(fmt.Sprintf("session_status failed: %v", err)), nil
			}
			out, _ := json.Marshal(map[string]int64{"entries": entries, "bytes": bytes})
			return NewResult(string(out)), nil
		},
	}
}
