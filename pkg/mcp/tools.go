package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/autoflowai/viflow/internal/diagram"
	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// handleRegister decodes and registers a workflow document.
func (s *ViFlowServer) handleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docRaw := mcp.ParseStringMap(req, "document", nil)
	if docRaw == nil {
		return mcp.NewToolResultError("document is required"), nil
	}

	// Round-trip through JSON to get a typed WorkflowDocument.
	docBytes, marshalErr := json.Marshal(docRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", marshalErr)), nil
	}
	var doc schema.WorkflowDocument
	if unmarshalErr := json.Unmarshal(docBytes, &doc); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", unmarshalErr)), nil
	}

	wf := graph.FromDocument(&doc)
	if regErr := s.engine.RegisterWorkflow(ctx, wf); regErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("registration failed: %v", regErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": wf.ID,
		"nodes":       wf.NodeCount(),
		"flows":       len(wf.Flows()),
	})
}

// handleRun starts a run and returns its id without waiting for completion.
func (s *ViFlowServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	runID, runErr := s.engine.StartRun(ctx, workflowID, input)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed to start: %v", runErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"run_id":      runID,
	})
}

// handleStatus returns a run snapshot.
func (s *ViFlowServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	snap, statusErr := s.engine.GetRunStatus(runID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}

	return marshalResult(snap)
}

// handleQuery lists run snapshots of a workflow.
func (s *ViFlowServer) handleQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	if _, ok := s.engine.Workflow(workflowID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not registered", workflowID)), nil
	}

	snaps := s.engine.ListRuns(workflowID)
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"count":       len(snaps),
		"runs":        snaps,
	})
}

// handleDiagram renders a workflow as Mermaid text, optionally overlaying the
// per-node statuses of one run.
func (s *ViFlowServer) handleDiagram(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, ok := s.engine.Workflow(workflowID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not registered", workflowID)), nil
	}

	var statuses map[string]schema.NodeExecStatus
	if runID := req.GetString("run_id", ""); runID != "" {
		history, histErr := s.engine.RunHistory(runID)
		if histErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("diagram failed: %v", histErr)), nil
		}
		statuses = make(map[string]schema.NodeExecStatus, len(history))
		for _, exec := range history {
			statuses[exec.NodeID] = exec.Status
		}
	}

	return mcp.NewToolResultText(diagram.Mermaid(wf, statuses)), nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
