package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/memory"
	"github.com/bashclaw/bashclaw/internal/tools"
)

// toolCmd implements §6's "Tool CLI subcommand": `tool <name> [--key
// val...]` and `tool <name> <json>` both dispatch to the same tool
// registry §4.D builds for the gateway process. Flag parsing is
// disabled on the cobra command because the flag set is dynamic (one
// tool's input schema differs from the next).
func toolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "tool <name> [--key val...]",
		Short:              "Invoke a single tool directly and print its result",
		DisableFlagParsing: true,
		Run: func(cmd *cobra.Command, args []string) {
			runTool(args)
		},
	}
	return cmd
}

func runTool(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: bashclaw tool <name> [--key val...]")
		return
	}

	name := args[0]
	reg := buildStandaloneToolRegistry()
	t, ok := reg.Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown tool: %s\n", name)
		os.Exit(1)
	}

	raw, err := toolInputFromArgs(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	result, err := t.Handler(context.Background(), raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if result.IsError {
		fmt.Fprintln(os.Stderr, result.ForLLM)
		os.Exit(1)
	}
	fmt.Println(result.ForLLM)
}

// toolInputFromArgs accepts either a single bare JSON object argument or
// a run of "--key val" pairs, turning either into the json.RawMessage a
// Tool.Handler expects.
func toolInputFromArgs(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		return json.RawMessage(args[0]), nil
	}

	fields := map[string]string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument %q, expected --key val", arg)
		}
		key := strings.TrimPrefix(arg, "--")
		if i+1 >= len(args) {
			return nil, fmt.Errorf("flag --%s missing a value", key)
		}
		i++
		fields[key] = args[i]
	}
	return json.Marshal(fields)
}

// buildStandaloneToolRegistry mirrors the gateway process's registry
// (cmd/gateway.go's buildToolRegistry) but is built fresh per CLI
// invocation against the same on-disk state, since `tool` runs
// independently of a running gateway.
func buildStandaloneToolRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	stateDir := resolveStateDir()
	workspaceDir := filepath.Join(stateDir, "agents", mainAgentID)
	os.MkdirAll(workspaceDir, 0755)

	reg.Register(tools.NewReadFileTool(workspaceDir))
	reg.Register(tools.NewListFilesTool(workspaceDir))
	reg.Register(tools.NewShellTool())
	reg.Register(tools.NewWebFetchTool())

	if memStore, err := memory.Open(filepath.Join(stateDir, "memory")); err == nil {
		reg.Register(tools.NewMemoryTool(memStore))
	}
	if cronStore, err := cron.OpenStore(filepath.Join(stateDir, "cron", "jobs.json")); err == nil {
		reg.Register(tools.NewCronTool(cronStore))
	}

	return reg
}
