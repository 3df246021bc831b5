// Package agent defines the boundary to the external agent execution
// service. The engine builds a Task from run variables and node config,
// hands it to an Executor and treats the whole call as fallible: errors are
// isolated by the agent_call handler and surfaced as data.
package agent

import "context"

// Task is the opaque payload submitted to an agent.
type Task struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	Priority int            `json:"priority"`
}

// DefaultPriority is used when the node config does not set one.
const DefaultPriority = 5

// Executor performs agent work outside the engine. Implementations decide
// how agent_ref is resolved (in-process handler, subprocess, remote
// service). Timeouts on individual calls are the executor's responsibility.
type Executor interface {
	Execute(ctx context.Context, agentRef string, task Task) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, agentRef string, task Task) (map[string]any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, agentRef string, task Task) (map[string]any, error) {
	return f(ctx, agentRef, task)
}
