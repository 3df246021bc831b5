package schema

import "time"

// WorkflowDocument is the JSON-serializable workflow format.
// It round-trips losslessly through graph.FromDocument / Workflow.ToDocument:
// same node set, same flow order, same configs, guards and variables.
type WorkflowDocument struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Nodes       map[string]NodeDocument `json:"nodes"`
	NodeOrder   []string                `json:"node_order,omitempty"` // insertion order of Nodes; derived from map order if absent
	Flows       []FlowDocument          `json:"flows"`
	Variables   map[string]any          `json:"variables,omitempty"`
	Version     string                  `json:"version,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	// ExpressionLanguage selects the guard evaluator: "expr" (default) or "cel".
	ExpressionLanguage string `json:"expression_language,omitempty"`
}

// NodeDocument describes a single node in a workflow document.
type NodeDocument struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Position  [2]int         `json:"position"`
	Config    map[string]any `json:"config,omitempty"`
	AgentRef  string         `json:"agent_ref,omitempty"`
	Condition string         `json:"condition,omitempty"`
	Inputs    []string       `json:"inputs,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
}

// FlowDocument describes a directed, optionally guarded edge.
type FlowDocument struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Guard string `json:"guard,omitempty"`
}

// NodeType enumerates the kinds of nodes in a workflow graph.
type NodeType string

const (
	NodeTypeStart         NodeType = "start"
	NodeTypeEnd           NodeType = "end"
	NodeTypeAgentCall     NodeType = "agent_call"
	NodeTypeCondition     NodeType = "condition"
	NodeTypeDataTransform NodeType = "data_transform"
	NodeTypeDelay         NodeType = "delay"
)

// Known reports whether t is one of the closed node type set.
// Unknown types are still dispatched (fail-soft), but validation warns on them.
func (t NodeType) Known() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeAgentCall,
		NodeTypeCondition, NodeTypeDataTransform, NodeTypeDelay:
		return true
	}
	return false
}

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	// RunStatusPaused is reserved for future suspend support; the engine
	// never produces it.
	RunStatusPaused RunStatus = "paused"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// NodeExecStatus is the per-node status recorded in a run's history.
type NodeExecStatus string

const (
	NodeExecRunning   NodeExecStatus = "running"
	NodeExecCompleted NodeExecStatus = "completed"
	NodeExecFailed    NodeExecStatus = "failed"
)

// RunSnapshot is the read-only status projection of a run, safe for polling
// until Status is terminal.
type RunSnapshot struct {
	RunID        string     `json:"run_id"`
	WorkflowID   string     `json:"workflow_id"`
	Status       RunStatus  `json:"status"`
	CurrentNode  string     `json:"current_node,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	ResultsCount int        `json:"results_count"`
	HistoryCount int        `json:"history_count"`
}
