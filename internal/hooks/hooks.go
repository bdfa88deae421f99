// Package hooks implements the lifecycle hook dispatcher (§4.E): register
// scripts against a closed event taxonomy, run them in priority order
// using one of three execution strategies, and load declarative
// definitions from a directory of header-commented scripts.
package hooks

import "time"

// Event is the closed set of lifecycle events a hook can bind to.
type Event string

const (
	EventSessionStart     Event = "session_start"
	EventBeforeAgentStart Event = "before_agent_start"
	EventPreMessage       Event = "pre_message"
	EventPostMessage      Event = "post_message"
	EventAgentEnd         Event = "agent_end"
	EventPreTool          Event = "pre_tool"
	EventPostTool         Event = "post_tool"
	EventOnError          Event = "on_error"
	EventPreCompact       Event = "pre_compact"
	EventPostToolUse      Event = "post_tool_use"
)

var validEvents = map[Event]bool{
	EventSessionStart:     true,
	EventBeforeAgentStart: true,
	EventPreMessage:       true,
	EventPostMessage:      true,
	EventAgentEnd:         true,
	EventPreTool:          true,
	EventPostTool:         true,
	EventOnError:          true,
	EventPreCompact:       true,
	EventPostToolUse:      true,
}

// IsValidEvent reports whether event belongs to the closed taxonomy.
func IsValidEvent(event Event) bool { return validEvents[event] }

// Strategy controls how a hook's exit/output feeds back into the chain.
type Strategy string

const (
	// StrategyModifying pipes input to the hook's stdin; its stdout
	// becomes the next hook's input and the eventual run() result.
	StrategyModifying Strategy = "modifying"
	// StrategyBlocking runs synchronously; a non-zero exit cancels the
	// chain and the caller sees a failure. Stdout is ignored.
	StrategyBlocking Strategy = "blocking"
	// StrategyVoid fires in the background; stdout is ignored and run()
	// does not wait for it.
	StrategyVoid Strategy = "void"
)

// defaultStrategy maps an event to the strategy spec text assigns it when
// the caller doesn't override one at registration time.
func defaultStrategy(event Event) Strategy {
	switch event {
	case EventPreMessage, EventPreTool:
		return StrategyModifying
	case EventPostMessage, EventAgentEnd, EventPostTool:
		return StrategyVoid
	case EventOnError:
		return StrategyBlocking
	default:
		return StrategyVoid
	}
}

// Registration is one hook binding, persisted one-per-file.
type Registration struct {
	Name     string   `json:"name"`
	Event    Event    `json:"event"`
	Script   string   `json:"script"`
	Enabled  bool     `json:"enabled"`
	Priority int      `json:"priority"`
	Strategy Strategy `json:"strategy"`

	Created time.Time `json:"created"`
}
