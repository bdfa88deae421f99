package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bashclaw/bashclaw/internal/bootstrap"
)

var bootstrapLabels = map[string]string{
	bootstrap.IdentityFile: "Identity",
	bootstrap.SoulFile:     "Soul",
	bootstrap.UserFile:     "User",
	bootstrap.MemoryFile:   "Memory",
	bootstrap.ToolsFile:    "Tools",
	bootstrap.AgentsFile:   "Agents",
}

// BuildSystemPrompt composes the system prompt (§4.F): the agent's
// configured systemPrompt, then each non-empty workspace bootstrap file
// wrapped in a labelled tag, then a memory-recall guidance block.
// Subagents skip SOUL.md and the memory-recall block.
func (e *Engine) BuildSystemPrompt(agentID string, isSubagent bool, channel string) string {
	var parts []string

	if sp, ok := e.Config.AgentGet(agentID, "systemPrompt", "").(string); ok && sp != "" {
		parts = append(parts, sp)
	}

	workspaceDir := e.WorkspaceRoot(agentID)
	for _, name := range bootstrap.PromptFiles {
		if isSubagent && name == bootstrap.SoulFile {
			continue
		}
		content, err := os.ReadFile(filepath.Join(workspaceDir, name))
		if err != nil || strings.TrimSpace(string(content)) == "" {
			continue
		}
		label := bootstrapLabels[name]
		parts = append(parts, fmt.Sprintf("[%s]\n%s", label, strings.TrimSpace(string(content))))
	}

	if !isSubagent {
		parts = append(parts, "Memory recall: use the memory tool to store and recall durable facts across sessions before assuming something is unknown.")
	}

	return strings.Join(parts, "\n\n")
}
