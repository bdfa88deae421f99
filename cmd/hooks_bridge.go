package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/hooks"
)

// bridgeEventMap translates the external Claude CLI's own hook event
// names (§4.F.1's {hooks:{PreCompact:[…], PostToolUse:[…]}} settings
// document) onto the closed event taxonomy §4.E's dispatcher runs
// against.
var bridgeEventMap = map[string]hooks.Event{
	"PreCompact":  hooks.EventPreCompact,
	"PostToolUse": hooks.EventPostToolUse,
}

// hooksBridgeCmd implements §6's "Hooks bridge subcommand": the
// external engine invokes `<binary> hooks-bridge <event>` as one of its
// own hook commands, piping its JSON payload over stdin.
func hooksBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hooks-bridge <event>",
		Short: "Bridge an external engine's hook event into the §4.E hook chain",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runHooksBridge(args[0])
		},
	}
}

func runHooksBridge(eventArg string) {
	internalEvent, known := bridgeEventMap[eventArg]
	if !known {
		fmt.Println("{}")
		return
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Println("{}")
		return
	}

	disp, err := hooks.New(filepath.Join(resolveStateDir(), "hooks"))
	if err != nil {
		fmt.Println("{}")
		return
	}

	out, runErr := disp.Run(context.Background(), internalEvent, input)

	// post_tool_use hooks are void/fire-and-forget from the external
	// engine's perspective — it never reads additionalContext back for
	// this event, so reflection is disabled.
	if internalEvent == hooks.EventPostToolUse {
		fmt.Println("{}")
		return
	}

	additionalContext := ""
	if runErr == nil && string(out) != string(input) {
		additionalContext = string(out)
	}

	resp := map[string]any{
		"additionalContext": additionalContext,
		"hookSpecificOutput": map[string]any{
			"hookEventName": eventArg,
		},
	}
	enc, err := json.Marshal(resp)
	if err != nil {
		fmt.Println("{}")
		return
	}
	fmt.Println(string(enc))
}
