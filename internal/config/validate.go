package config

import (
	"fmt"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

var validDMScopes = map[string]bool{
	"per-channel":      true,
	"per-sender":       true,
	"per-channel-peer": true,
	"global":           true,
}

// Validate enforces the invariants named in §4.A / testable property 10:
// parseable JSON (implicit — Load already parsed it), gateway.port an
// integer in [1,65535], every agents.list[].id present, and
// session.dmScope (if set) one of the four scope names.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	port, ok := getPath(s.tree, "gateway.port")
	if !ok {
		return bashclawerr.New(bashclawerr.ConfigInvalid, "gateway.port is required")
	}
	portNum, ok := port.(float64)
	if !ok || portNum != float64(int(portNum)) {
		return bashclawerr.New(bashclawerr.ConfigInvalid, "gateway.port must be an integer")
	}
	if portNum < 1 || portNum > 65535 {
		return bashclawerr.New(bashclawerr.ConfigInvalid, fmt.Sprintf("gateway.port %v out of range [1,65535]", portNum))
	}

	if list, ok := getPath(s.tree, "agents.list"); ok {
		arr, ok := list.([]any)
		if !ok {
			return bashclawerr.New(bashclawerr.ConfigInvalid, "agents.list must be an array")
		}
		for i, item := range arr {
			m, ok := item.(map[string]any)
			if !ok {
				return bashclawerr.New(bashclawerr.ConfigInvalid, fmt.Sprintf("agents.list[%d] must be an object", i))
			}
			id, _ := m["id"].(string)
			if id == "" {
				return bashclawerr.New(bashclawerr.ConfigInvalid, fmt.Sprintf("agents.list[%d].id is required", i))
			}
		}
	}

	if scope, ok := getPath(s.tree, "session.dmScope"); ok {
		name, _ := scope.(string)
		if !validDMScopes[name] {
			return bashclawerr.New(bashclawerr.ConfigInvalid, fmt.Sprintf("session.dmScope %q is not a recognised scope", name))
		}
	}

	return nil
}
