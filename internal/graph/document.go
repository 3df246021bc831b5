package graph

import (
	"sort"

	"github.com/autoflowai/viflow/pkg/schema"
)

// ToDocument serializes the workflow into its wire document.
// The document carries the node insertion order explicitly so the JSON map
// round-trips without losing evaluation determinism.
func (w *Workflow) ToDocument() *schema.WorkflowDocument {
	doc := &schema.WorkflowDocument{
		ID:                 w.ID,
		Name:               w.Name,
		Description:        w.Description,
		Nodes:              make(map[string]schema.NodeDocument, len(w.nodes)),
		NodeOrder:          append([]string(nil), w.order...),
		Flows:              make([]schema.FlowDocument, 0, len(w.flows)),
		Variables:          w.Variables,
		Version:            w.Version,
		Tags:               w.Tags,
		ExpressionLanguage: w.ExpressionLanguage,
	}

	for _, id := range w.order {
		n := w.nodes[id]
		doc.Nodes[id] = schema.NodeDocument{
			ID:        n.ID,
			Name:      n.Name,
			Type:      string(n.Type),
			Position:  n.Position,
			Config:    n.Config,
			AgentRef:  n.AgentRef,
			Condition: n.Condition,
			Inputs:    n.Inputs,
			Outputs:   n.Outputs,
		}
	}

	for _, f := range w.flows {
		doc.Flows = append(doc.Flows, schema.FlowDocument{
			From:  f.From,
			To:    f.To,
			Guard: f.Guard,
		})
	}

	return doc
}

// FromDocument rebuilds a Workflow from its wire document.
// Nodes are inserted following NodeOrder when present; ids missing from
// NodeOrder (hand-written documents) are appended afterwards sorted by id,
// since Go map iteration order would make flow evaluation non-deterministic.
func FromDocument(doc *schema.WorkflowDocument) *Workflow {
	if doc == nil {
		return nil
	}

	w := New(doc.ID, doc.Name, doc.Description)
	if doc.Variables != nil {
		w.Variables = doc.Variables
	}
	if doc.Version != "" {
		w.Version = doc.Version
	}
	w.Tags = doc.Tags
	w.ExpressionLanguage = doc.ExpressionLanguage

	addNode := func(nd schema.NodeDocument) {
		w.AddNode(&Node{
			ID:        nd.ID,
			Name:      nd.Name,
			Type:      schema.NodeType(nd.Type),
			Position:  nd.Position,
			Config:    nd.Config,
			AgentRef:  nd.AgentRef,
			Condition: nd.Condition,
			Inputs:    nd.Inputs,
			Outputs:   nd.Outputs,
		})
	}

	seen := make(map[string]struct{}, len(doc.Nodes))
	for _, id := range doc.NodeOrder {
		if nd, ok := doc.Nodes[id]; ok {
			addNode(nd)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id := range doc.Nodes {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		addNode(doc.Nodes[id])
	}

	for _, f := range doc.Flows {
		w.AddFlow(Flow{From: f.From, To: f.To, Guard: f.Guard})
	}

	return w
}
