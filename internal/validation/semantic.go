package validation

import (
	"fmt"

	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// validateSemantic performs semantic analysis on an assembled workflow graph.
// Checks: at least one start node, flow endpoints reference existing nodes,
// agent_call nodes carry an agent_ref, condition nodes carry an expression.
// Unknown node types are warnings: they dispatch as fail-soft no-ops.
func validateSemantic(wf *graph.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	starts := 0
	for _, n := range wf.Nodes() {
		path := "nodes/" + n.ID

		switch n.Type {
		case schema.NodeTypeStart:
			starts++
		case schema.NodeTypeAgentCall:
			if n.AgentRef == "" {
				result.AddError(path+"/agent_ref", schema.ErrCodeValidation,
					fmt.Sprintf("agent_call node %q requires an agent_ref", n.ID))
			}
		case schema.NodeTypeCondition:
			if n.Condition == "" {
				if _, ok := n.Config["condition"].(string); !ok {
					result.AddWarning(path+"/condition", schema.ErrCodeValidation,
						fmt.Sprintf("condition node %q has no expression; it always evaluates to false", n.ID))
				}
			}
		}

		if !n.Type.Known() {
			result.AddWarning(path+"/type", schema.ErrCodeValidation,
				fmt.Sprintf("unknown node type %q; node executes as a no-op", n.Type))
		}
	}

	if starts == 0 {
		result.AddError("nodes", schema.ErrCodeValidation, "workflow has no start node")
	}
	if starts > 1 {
		result.AddWarning("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("workflow has %d start nodes; runs begin at the first in insertion order", starts))
	}

	for i, f := range wf.Flows() {
		path := fmt.Sprintf("flows[%d]", i)
		if _, ok := wf.Node(f.From); !ok {
			result.AddError(path+"/from", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", f.From))
		}
		if _, ok := wf.Node(f.To); !ok {
			result.AddError(path+"/to", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", f.To))
		}
	}

	return result
}
