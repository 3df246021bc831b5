package engine

import (
	"maps"
	"sync"
	"time"

	"github.com/autoflowai/viflow/pkg/schema"
)

// NodeExecution is one entry in a run's append-only history.
type NodeExecution struct {
	NodeID      string                `json:"node_id"`
	NodeName    string                `json:"node_name"`
	NodeType    schema.NodeType       `json:"node_type"`
	Status      schema.NodeExecStatus `json:"status"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
	DurationMs  int64                 `json:"duration_ms"`
	Error       string                `json:"error,omitempty"`
}

// Run is the mutable state of one workflow execution. It is owned by the
// goroutine walking the graph; the embedded mutex exists so status snapshots
// can be taken concurrently while the run progresses. A Run is never shared
// between executions.
type Run struct {
	ID         string
	WorkflowID string
	InputData  map[string]any

	mu          sync.Mutex
	status      schema.RunStatus
	currentNode string
	variables   map[string]any
	results     map[string]map[string]any
	history     []NodeExecution
	startedAt   time.Time
	completedAt *time.Time
	err         string

	cancel func()
}

// newRun builds a Created run with variables seeded from the workflow's
// defaults overlaid with the caller's input data (input wins on conflict).
func newRun(id, workflowID string, defaults, input map[string]any) *Run {
	vars := make(map[string]any, len(defaults)+len(input))
	maps.Copy(vars, defaults)
	maps.Copy(vars, input)

	return &Run{
		ID:         id,
		WorkflowID: workflowID,
		InputData:  input,
		status:     schema.RunStatusCreated,
		variables:  vars,
		results:    make(map[string]map[string]any),
		startedAt:  time.Now().UTC(),
	}
}

// Status returns the current run status.
func (r *Run) Status() schema.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Variables returns a shallow copy of the run variables.
func (r *Run) Variables() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.variables))
	maps.Copy(out, r.variables)
	return out
}

// Results returns a copy of the per-node results (last output per node id).
func (r *Run) Results() map[string]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]any, len(r.results))
	for id, res := range r.results {
		c := make(map[string]any, len(res))
		maps.Copy(c, res)
		out[id] = c
	}
	return out
}

// History returns a copy of the node execution log.
func (r *Run) History() []NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeExecution, len(r.history))
	copy(out, r.history)
	return out
}

// Snapshot returns a point-in-time status projection. Safe to call from any
// goroutine; values are stable once the status is terminal.
func (r *Run) Snapshot() schema.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := schema.RunSnapshot{
		RunID:        r.ID,
		WorkflowID:   r.WorkflowID,
		Status:       r.status,
		CurrentNode:  r.currentNode,
		StartedAt:    r.startedAt,
		Error:        r.err,
		ResultsCount: len(r.results),
		HistoryCount: len(r.history),
	}
	if r.completedAt != nil {
		t := *r.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

// setRunning transitions the run to Running.
func (r *Run) setRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = schema.RunStatusRunning
}

// setCurrent records the node about to be dispatched.
func (r *Run) setCurrent(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentNode = nodeID
}

// finish transitions the run to a terminal status and stamps completion.
func (r *Run) finish(status schema.RunStatus, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.status = status
	r.err = errMsg
	now := time.Now().UTC()
	r.completedAt = &now
}

// recordOutput merges a node's output into the variables (last write wins)
// and stores it as the node's result.
func (r *Run) recordOutput(nodeID string, output map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if output == nil {
		output = map[string]any{}
	}
	maps.Copy(r.variables, output)
	r.results[nodeID] = output
}

// appendHistory adds a node execution record to the log.
func (r *Run) appendHistory(exec NodeExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, exec)
}
