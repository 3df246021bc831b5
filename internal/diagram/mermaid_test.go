package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

func branchingWorkflow() *graph.Workflow {
	wf := graph.New("wf-1", "Order Routing", "")
	wf.AddNode(&graph.Node{ID: "start", Name: "Start", Type: schema.NodeTypeStart})
	wf.AddNode(&graph.Node{ID: "check", Name: "Check Amount", Type: schema.NodeTypeCondition, Condition: "amount > 100"})
	wf.AddNode(&graph.Node{ID: "wait", Name: "Cool Down", Type: schema.NodeTypeDelay})
	wf.AddNode(&graph.Node{ID: "end", Name: "End", Type: schema.NodeTypeEnd})
	wf.AddFlow(graph.Flow{From: "start", To: "check"})
	wf.AddFlow(graph.Flow{From: "check", To: "wait", Guard: "true"})
	wf.AddFlow(graph.Flow{From: "check", To: "end", Guard: "false"})
	wf.AddFlow(graph.Flow{From: "wait", To: "end"})
	return wf
}

func TestMermaid(t *testing.T) {
	out := Mermaid(branchingWorkflow(), nil)

	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "%% Order Routing")
	assert.Contains(t, out, `start(("Start"))`)
	assert.Contains(t, out, `check{"Check Amount"}`)
	assert.Contains(t, out, `wait(["Cool Down"])`)
	assert.Contains(t, out, `end(("End"))`)
	assert.Contains(t, out, "check -->|true| wait")
	assert.Contains(t, out, "check -->|false| end")
	assert.Contains(t, out, "start --> check")

	// No statuses, no class definitions.
	assert.NotContains(t, out, "classDef")
}

func TestMermaid_StatusOverlay(t *testing.T) {
	out := Mermaid(branchingWorkflow(), map[string]schema.NodeExecStatus{
		"start": schema.NodeExecCompleted,
		"check": schema.NodeExecFailed,
	})

	assert.Contains(t, out, "classDef completed")
	assert.Contains(t, out, "class start completed")
	assert.Contains(t, out, "class check failed")
	assert.NotContains(t, out, "class wait")
}

func TestMermaid_SanitizesIDsAndLabels(t *testing.T) {
	wf := graph.New("wf", "wf", "")
	wf.AddNode(&graph.Node{ID: "my-node.v2", Name: `say "hi"`, Type: schema.NodeTypeAgentCall})

	out := Mermaid(wf, nil)
	require.Contains(t, out, `my_node_v2["say 'hi'"]`)
}

func TestMermaid_Nil(t *testing.T) {
	assert.Empty(t, Mermaid(nil, nil))
}
