// Package graph holds the workflow graph model: typed nodes, guarded flows
// and the workflow container that owns them. A Workflow is mutable while it
// is being defined (AddNode/AddFlow) and must be treated as read-only once
// registered with the engine, where it is shared by concurrent runs.
package graph

import "github.com/autoflowai/viflow/pkg/schema"

// Node is one step in a workflow graph.
type Node struct {
	ID        string
	Name      string
	Type      schema.NodeType
	Position  [2]int // display-only coordinates, no execution meaning
	Config    map[string]any
	AgentRef  string // required for agent_call nodes
	Condition string // boolean expression text, used by condition nodes
	Inputs    []string
	Outputs   []string
}

// Flow is a directed connection between two nodes.
// Guard is either empty (unconditional), the literal "true"/"false", or an
// arbitrary boolean expression evaluated against the run's variables.
type Flow struct {
	From  string
	To    string
	Guard string
}

// Workflow is a directed graph of nodes and flows plus default variables.
// Node insertion order is preserved so flow evaluation is deterministic.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Variables   map[string]any
	Version     string
	Tags        []string

	// ExpressionLanguage selects the guard evaluator ("expr" or "cel").
	// Empty means the engine default.
	ExpressionLanguage string

	nodes map[string]*Node
	order []string
	flows []Flow
}

// New creates an empty Workflow.
func New(id, name, description string) *Workflow {
	return &Workflow{
		ID:          id,
		Name:        name,
		Description: description,
		Variables:   make(map[string]any),
		Version:     "1.0.0",
		nodes:       make(map[string]*Node),
	}
}

// AddNode inserts a node. A duplicate id overwrites the existing node in
// place, keeping its original slot in iteration order; this allows
// incremental editing of a definition.
func (w *Workflow) AddNode(n *Node) {
	if n == nil || n.ID == "" {
		return
	}
	if _, exists := w.nodes[n.ID]; !exists {
		w.order = append(w.order, n.ID)
	}
	w.nodes[n.ID] = n
}

// AddFlow appends a flow. Endpoint existence is checked at registration by
// the validation package, not here.
func (w *Workflow) AddFlow(f Flow) {
	w.flows = append(w.flows, f)
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (w *Workflow) Nodes() []*Node {
	out := make([]*Node, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.nodes[id])
	}
	return out
}

// NodeCount returns the number of nodes.
func (w *Workflow) NodeCount() int {
	return len(w.nodes)
}

// Flows returns all flows in insertion order.
func (w *Workflow) Flows() []Flow {
	return w.flows
}

// OutgoingFlows returns the flows leaving nodeID, in insertion order.
func (w *Workflow) OutgoingFlows(nodeID string) []Flow {
	var out []Flow
	for _, f := range w.flows {
		if f.From == nodeID {
			out = append(out, f)
		}
	}
	return out
}

// StartNode returns the first start-type node in insertion order, or nil.
func (w *Workflow) StartNode() *Node {
	for _, id := range w.order {
		if w.nodes[id].Type == schema.NodeTypeStart {
			return w.nodes[id]
		}
	}
	return nil
}
