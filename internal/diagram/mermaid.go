// Package diagram renders workflow graphs as Mermaid flowcharts, optionally
// overlaying per-node execution status from a run's history.
package diagram

import (
	"fmt"
	"strings"

	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// Mermaid renders the workflow as a Mermaid "graph TD" flowchart.
// statuses may be nil; when present, nodes are colored by execution status.
func Mermaid(wf *graph.Workflow, statuses map[string]schema.NodeExecStatus) string {
	if wf == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	if wf.Name != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", wf.Name)
	}

	for _, node := range wf.Nodes() {
		fmt.Fprintf(&b, "    %s\n", nodeDef(node))
	}

	for _, flow := range wf.Flows() {
		label := ""
		if flow.Guard != "" {
			label = fmt.Sprintf("|%s|", escapeLabel(flow.Guard))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", safeID(flow.From), label, safeID(flow.To))
	}

	if len(statuses) > 0 {
		b.WriteString("\n")
		b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
		b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
		b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")

		for _, node := range wf.Nodes() {
			if cls := statusClass(statuses[node.ID]); cls != "" {
				fmt.Fprintf(&b, "    class %s %s\n", safeID(node.ID), cls)
			}
		}
	}

	return b.String()
}

// nodeDef picks a Mermaid shape per node type: circles for start/end, a
// diamond for conditions, a stadium for delays, a subroutine box for
// transforms, a plain box for everything else.
func nodeDef(node *graph.Node) string {
	id := safeID(node.ID)
	label := escapeLabel(nodeLabel(node))

	switch node.Type {
	case schema.NodeTypeStart, schema.NodeTypeEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	case schema.NodeTypeCondition:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.NodeTypeDelay:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.NodeTypeDataTransform:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func nodeLabel(node *graph.Node) string {
	if node.Name != "" {
		return node.Name
	}
	return node.ID
}

// safeID rewrites characters Mermaid treats as syntax.
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func escapeLabel(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, `"`, "'")
}

func statusClass(status schema.NodeExecStatus) string {
	switch status {
	case schema.NodeExecCompleted:
		return "completed"
	case schema.NodeExecFailed:
		return "failed"
	case schema.NodeExecRunning:
		return "running"
	default:
		return ""
	}
}
