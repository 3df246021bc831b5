package engine

import (
	"context"

	"github.com/autoflowai/viflow/internal/expressions"
	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// nodeExpression returns the boolean expression a node carries, if any.
// Condition nodes use Condition (falling back to config "condition");
// data_transform nodes use config "formula".
func nodeExpression(n *graph.Node) string {
	switch n.Type {
	case schema.NodeTypeCondition:
		if n.Condition != "" {
			return n.Condition
		}
		if s, ok := n.Config["condition"].(string); ok {
			return s
		}
	case schema.NodeTypeDataTransform:
		if s, ok := n.Config["formula"].(string); ok {
			return s
		}
	}
	return ""
}

// selectNext picks the target of the first eligible outgoing flow of node,
// scanning flows in insertion order. Eligibility per guard:
//
//   - empty guard: always eligible (unconditional edge)
//   - "true"/"false": matched against the boolean of the node's own
//     expression; a node with no expression treats "true" as eligible and
//     "false" as not
//   - anything else: evaluated as a boolean expression against the current
//     run variables; errors and non-boolean results count as false
//
// Every eligible flow after the first is ignored. Returns ("", false) when
// no flow matches (a dead end).
func selectNext(ctx context.Context, wf *graph.Workflow, node *graph.Node,
	lastOutput, vars map[string]any, eng expressions.Engine) (string, bool) {

	flows := wf.OutgoingFlows(node.ID)
	if len(flows) == 0 {
		return "", false
	}

	selfVal, hasSelf := selfResult(ctx, node, lastOutput, vars, eng)

	for _, f := range flows {
		switch f.Guard {
		case "":
			return f.To, true
		case "true":
			if !hasSelf || selfVal {
				return f.To, true
			}
		case "false":
			if hasSelf && !selfVal {
				return f.To, true
			}
		default:
			if expressions.EvalBool(ctx, eng, f.Guard, vars) {
				return f.To, true
			}
		}
	}
	return "", false
}

// selfResult resolves the boolean a "true"/"false" guard is matched against.
// A condition node already evaluated its expression during dispatch, so its
// stored condition_result is reused; otherwise the node's expression is
// evaluated against the current variables.
func selfResult(ctx context.Context, node *graph.Node, lastOutput, vars map[string]any,
	eng expressions.Engine) (bool, bool) {

	if b, ok := lastOutput["condition_result"].(bool); ok {
		return b, true
	}
	if expr := nodeExpression(node); expr != "" {
		return expressions.EvalBool(ctx, eng, expr, vars), true
	}
	return false, false
}
