package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/autoflowai/viflow/internal/agent"
	"github.com/autoflowai/viflow/internal/expressions"
	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// dispatch executes a single node and returns its output. Handler failures
// that the run should survive (an agent error, a bad transform formula) are
// folded into the output map; a returned error is fatal and fails the run.
func (e *Engine) dispatch(ctx context.Context, node *graph.Node, run *Run, eng expressions.Engine) (map[string]any, error) {
	switch node.Type {
	case schema.NodeTypeStart:
		return map[string]any{"status": "started"}, nil

	case schema.NodeTypeEnd:
		return e.handleEnd(run), nil

	case schema.NodeTypeAgentCall:
		return e.handleAgentCall(ctx, node, run), nil

	case schema.NodeTypeCondition:
		result := expressions.EvalBool(ctx, eng, nodeExpression(node), run.Variables())
		return map[string]any{"condition_result": result}, nil

	case schema.NodeTypeDataTransform:
		return e.handleDataTransform(ctx, node, run, eng), nil

	case schema.NodeTypeDelay:
		return e.handleDelay(ctx, node)

	default:
		// Unrecognized type in a loaded document: diagnostic no-op so the
		// walk can continue through whatever edges follow.
		return map[string]any{"note": fmt.Sprintf("unsupported node type %q", node.Type)}, nil
	}
}

// handleEnd snapshots the accumulated per-node results as the run's final output.
func (e *Engine) handleEnd(run *Run) map[string]any {
	return map[string]any{
		"status":        "completed",
		"final_results": run.Results(),
	}
}

// handleAgentCall submits a task to the agent executor. The call is fully
// isolated: any failure (no executor, unknown agent, executor error, executor
// panic) becomes an {error: ...} output and the run continues.
func (e *Engine) handleAgentCall(ctx context.Context, node *graph.Node, run *Run) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			out = map[string]any{"error": fmt.Sprintf("agent executor panic: %v", r)}
		}
	}()

	if node.AgentRef == "" {
		return map[string]any{"error": fmt.Sprintf("agent_call node %q has no agent_ref", node.ID)}
	}
	if e.agents == nil {
		return map[string]any{"error": "no agent executor configured"}
	}

	payload := run.Variables()
	maps.Copy(payload, node.Config)

	task := agent.Task{
		ID:       uuid.New().String(),
		Type:     taskType(node),
		Payload:  payload,
		Priority: taskPriority(node),
	}

	output, err := e.agents.Execute(ctx, node.AgentRef, task)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if output == nil {
		output = map[string]any{}
	}
	return output
}

func taskType(node *graph.Node) string {
	if s, ok := node.Config["task_type"].(string); ok && s != "" {
		return s
	}
	return node.Name
}

func taskPriority(node *graph.Node) int {
	switch v := node.Config["priority"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return agent.DefaultPriority
}

// handleDataTransform applies the configured operation to the run variables.
// Bad configuration and evaluation errors are fail-soft: the output carries
// a diagnostic and the run continues.
func (e *Engine) handleDataTransform(ctx context.Context, node *graph.Node, run *Run, eng expressions.Engine) map[string]any {
	op, _ := node.Config["operation"].(string)
	vars := run.Variables()

	switch op {
	case "copy":
		inKey, _ := node.Config["input_key"].(string)
		outKey, _ := node.Config["output_key"].(string)
		if inKey == "" || outKey == "" {
			return map[string]any{"note": "copy operation needs input_key and output_key"}
		}
		return map[string]any{outKey: vars[inKey]}

	case "calculate":
		formula, _ := node.Config["formula"].(string)
		if formula == "" {
			return map[string]any{"note": "calculate operation needs a formula"}
		}
		val, err := eng.Evaluate(ctx, formula, vars)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return map[string]any{outputKey(node, "calculation_result"): val}

	case "jq":
		query, _ := node.Config["expression"].(string)
		if query == "" {
			query, _ = node.Config["query"].(string)
		}
		if query == "" {
			return map[string]any{"note": "jq operation needs an expression"}
		}
		val, err := e.jq.Evaluate(ctx, query, vars)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return map[string]any{outputKey(node, "jq_result"): val}

	default:
		return map[string]any{"note": fmt.Sprintf("unsupported transform operation %q", op)}
	}
}

func outputKey(node *graph.Node, fallback string) string {
	if s, ok := node.Config["output_key"].(string); ok && s != "" {
		return s
	}
	return fallback
}

// handleDelay suspends this run only, for config "seconds" (number) or
// "duration" (Go duration string). Cancellation interrupts the wait.
func (e *Engine) handleDelay(ctx context.Context, node *graph.Node) (map[string]any, error) {
	d := delayDuration(node)
	if d <= 0 {
		return map[string]any{"delayed_seconds": 0.0}, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"delayed_seconds": d.Seconds()}, nil
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "run cancelled during delay").
			WithNode(node.ID).WithCause(ctx.Err())
	}
}

func delayDuration(node *graph.Node) time.Duration {
	switch v := node.Config["seconds"].(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	if s, ok := node.Config["duration"].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 0
}
