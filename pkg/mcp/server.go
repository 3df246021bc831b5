// Package mcp exposes the engine over the Model Context Protocol so agent
// hosts can register workflow documents, start runs and poll their status.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/autoflowai/viflow/internal/engine"
)

// ServerDeps holds the dependencies for creating a ViFlowServer.
type ServerDeps struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

// ViFlowServer wraps an MCP server with viflow-specific tool handlers.
type ViFlowServer struct {
	engine    *engine.Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewViFlowServer creates a new ViFlowServer with all 5 tools registered.
func NewViFlowServer(deps ServerDeps) (*ViFlowServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ViFlowServer{
		engine: deps.Engine,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"viflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("ViFlow is an agent-first workflow orchestration engine. Use viflow.register to register a workflow document, viflow.run to start a run, viflow.status to poll a run, viflow.query to list runs of a workflow, and viflow.diagram to render a workflow as a Mermaid flowchart."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ViFlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ViFlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *ViFlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: registerTool(), Handler: s.handleRegister},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func registerTool() mcp.Tool {
	return mcp.NewTool("viflow.register",
		mcp.WithDescription("Register a workflow document so it can be run"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Workflow document: {id, name, nodes, flows, variables, ...}")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("viflow.run",
		mcp.WithDescription("Start a run of a registered workflow; returns the run id immediately"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to run")),
		mcp.WithObject("input", mcp.Description("Input data merged over the workflow's default variables")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("viflow.status",
		mcp.WithDescription("Get a run status snapshot"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("viflow.query",
		mcp.WithDescription("List run snapshots of a workflow, oldest first"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow whose runs to list")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("viflow.diagram",
		mcp.WithDescription("Render a workflow as a Mermaid flowchart, optionally colored by a run's node statuses"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to render")),
		mcp.WithString("run_id", mcp.Description("Overlay node execution statuses from this run")),
	)
}
