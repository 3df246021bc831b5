package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/viflow/pkg/schema"
)

func sampleWorkflow() *Workflow {
	wf := New("wf-1", "sample", "a sample workflow")
	wf.Variables["env"] = "prod"
	wf.Tags = []string{"sample"}
	wf.AddNode(&Node{ID: "start", Name: "Start", Type: schema.NodeTypeStart})
	wf.AddNode(&Node{ID: "check", Name: "Check", Type: schema.NodeTypeCondition, Condition: "x > 1"})
	wf.AddNode(&Node{ID: "call", Name: "Call", Type: schema.NodeTypeAgentCall,
		AgentRef: "enricher", Config: map[string]any{"priority": 2}})
	wf.AddNode(&Node{ID: "end", Name: "End", Type: schema.NodeTypeEnd})
	wf.AddFlow(Flow{From: "start", To: "check"})
	wf.AddFlow(Flow{From: "check", To: "call", Guard: "true"})
	wf.AddFlow(Flow{From: "check", To: "end", Guard: "false"})
	wf.AddFlow(Flow{From: "call", To: "end"})
	return wf
}

func TestAddNode_InsertionOrder(t *testing.T) {
	wf := sampleWorkflow()

	ids := make([]string, 0, wf.NodeCount())
	for _, n := range wf.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"start", "check", "call", "end"}, ids)
	assert.Equal(t, 4, wf.NodeCount())
}

func TestAddNode_DuplicateOverwritesInPlace(t *testing.T) {
	wf := sampleWorkflow()

	wf.AddNode(&Node{ID: "check", Name: "Check v2", Type: schema.NodeTypeCondition, Condition: "x > 10"})

	n, ok := wf.Node("check")
	require.True(t, ok)
	assert.Equal(t, "Check v2", n.Name)
	assert.Equal(t, "x > 10", n.Condition)

	// Slot in iteration order is preserved.
	assert.Equal(t, "check", wf.Nodes()[1].ID)
	assert.Equal(t, 4, wf.NodeCount())
}

func TestAddNode_IgnoresNilAndEmpty(t *testing.T) {
	wf := New("wf", "wf", "")
	wf.AddNode(nil)
	wf.AddNode(&Node{})
	assert.Equal(t, 0, wf.NodeCount())
}

func TestOutgoingFlows_Order(t *testing.T) {
	wf := sampleWorkflow()

	out := wf.OutgoingFlows("check")
	require.Len(t, out, 2)
	assert.Equal(t, "call", out[0].To)
	assert.Equal(t, "end", out[1].To)

	assert.Empty(t, wf.OutgoingFlows("end"))
}

func TestStartNode(t *testing.T) {
	wf := sampleWorkflow()
	start := wf.StartNode()
	require.NotNil(t, start)
	assert.Equal(t, "start", start.ID)

	empty := New("e", "e", "")
	assert.Nil(t, empty.StartNode())

	// First start node in insertion order wins.
	two := New("t", "t", "")
	two.AddNode(&Node{ID: "s2", Type: schema.NodeTypeStart})
	two.AddNode(&Node{ID: "s1", Type: schema.NodeTypeStart})
	assert.Equal(t, "s2", two.StartNode().ID)
}
