package agent

import (
	"context"
	"fmt"

	"github.com/bashclaw/bashclaw/internal/tools"
)

// SpawnRunner returns a tools.RunSubagent closure bound to agentID that
// runs the spawned task through this same engine as a subagent turn,
// enforcing maxSpawnDepth so a subagent can't spawn its way into an
// unbounded recursion (§3.F).
func (e *Engine) SpawnRunner(agentID, channel, sender string) tools.RunSubagent {
	return func(ctx context.Context, task string) (string, error) {
		depth := e.spawnDepth(ctx)
		if depth >= maxSpawnDepth {
			return "", fmt.Errorf("agent: spawn depth limit (%d) reached", maxSpawnDepth)
		}
		ctx = withSpawnDepth(ctx, depth+1)
		return e.Run(ctx, agentID, task, channel, sender, true)
	}
}
