// Package engine executes workflow graphs: it keeps the registries of
// workflows and runs, walks a graph node by node inside a bounded run pool,
// and exposes status snapshots while runs are in flight.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoflowai/viflow/internal/agent"
	"github.com/autoflowai/viflow/internal/expressions"
	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/internal/logging"
	"github.com/autoflowai/viflow/internal/store"
	"github.com/autoflowai/viflow/internal/streaming"
	"github.com/autoflowai/viflow/internal/validation"
	"github.com/autoflowai/viflow/pkg/schema"
)

// DefaultPoolSize is the default cap on concurrently executing runs.
const DefaultPoolSize = 10

// Config holds engine configuration.
type Config struct {
	// PoolSize caps the number of runs executing at once. Zero means
	// DefaultPoolSize.
	PoolSize int
	// DefaultExpressionLanguage is used by workflows that do not declare one.
	DefaultExpressionLanguage string
	// Store, when set, receives best-effort persistence of workflows, runs
	// and run events. The engine is fully functional without it.
	Store store.Store
	// Agents executes agent_call tasks. Nil means every agent_call yields an
	// error result.
	Agents agent.Executor
	// Events, when set, receives live run events (run_started, node_completed,
	// ...) as they happen. Publishing never blocks execution.
	Events streaming.Hub
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the workflow execution coordinator.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	store  store.Store
	agents agent.Executor
	events streaming.Hub
	pool   *runPool

	exprEng *expressions.ExprEngine
	celEng  *expressions.CELEngine
	jq      *expressions.GoJQEngine

	mu        sync.RWMutex
	workflows map[string]*graph.Workflow
	runs      map[string]*Run
}

// New creates an Engine from the given configuration.
func New(cfg Config) *Engine {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// CEL environment construction can fail in theory; workflows declaring
	// "cel" then fall back to the default engine.
	celEng, err := expressions.NewCELEngine()
	if err != nil {
		cfg.Logger.Warn("CEL engine unavailable, falling back to expr", "error", err)
		celEng = nil
	}

	return &Engine{
		cfg:       cfg,
		log:       cfg.Logger,
		store:     cfg.Store,
		agents:    cfg.Agents,
		events:    cfg.Events,
		pool:      newRunPool(cfg.PoolSize),
		exprEng:   expressions.NewExprEngine(),
		celEng:    celEng,
		jq:        expressions.NewGoJQEngine(),
		workflows: make(map[string]*graph.Workflow),
		runs:      make(map[string]*Run),
	}
}

// RegisterWorkflow validates a workflow and stores it by id. Re-registering
// an id overwrites the previous definition; in-flight runs keep the graph
// they started with.
func (e *Engine) RegisterWorkflow(ctx context.Context, wf *graph.Workflow) error {
	if wf == nil || wf.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil or has no id")
	}
	if result := validation.ValidateWorkflow(wf); !result.Valid() {
		return result.ToError()
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()

	e.log.InfoContext(logging.WithWorkflowID(ctx, wf.ID), "workflow registered",
		"name", wf.Name, "nodes", wf.NodeCount())

	e.persistWorkflow(ctx, wf)
	return nil
}

// Workflow returns the registered workflow with the given id.
func (e *Engine) Workflow(id string) (*graph.Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[id]
	return wf, ok
}

// ListWorkflows returns the ids of all registered workflows, sorted.
func (e *Engine) ListWorkflows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.workflows))
	for id := range e.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartRun allocates a run for the workflow and returns its id immediately.
// The run executes asynchronously once it acquires a slot in the run pool.
func (e *Engine) StartRun(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	e.mu.RLock()
	wf, ok := e.workflows[workflowID]
	e.mu.RUnlock()
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not registered", workflowID)
	}

	run := newRun(uuid.New().String(), workflowID, wf.Variables, input)

	// The run outlives the StartRun call, so its context is detached from
	// the caller's. CancelRun goes through this cancel func.
	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = logging.WithIDs(runCtx, workflowID, run.ID, "")
	run.cancel = cancel

	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	e.persistRunCreated(ctx, run)

	go func() {
		// The context is released when the run itself finishes, not when the
		// submission returns: Submit hands the work off to a pool goroutine
		// and comes back while execute is still walking the graph.
		err := e.pool.Submit(runCtx, func(ctx context.Context) error {
			defer cancel()
			return e.execute(ctx, wf, run)
		})
		if err != nil {
			cancel()
			run.finish(schema.RunStatusFailed, "run not started: "+err.Error())
			e.persistRunTerminal(run)
		}
	}()

	return run.ID, nil
}

// GetRunStatus returns a snapshot of the run, or NotFound.
func (e *Engine) GetRunStatus(runID string) (schema.RunSnapshot, error) {
	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return schema.RunSnapshot{}, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	return run.Snapshot(), nil
}

// RunHistory returns a copy of the run's node execution log, or NotFound.
func (e *Engine) RunHistory(runID string) ([]NodeExecution, error) {
	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	return run.History(), nil
}

// ListRuns returns snapshots of all runs of a workflow, oldest first.
// An empty workflowID matches every run.
func (e *Engine) ListRuns(workflowID string) []schema.RunSnapshot {
	e.mu.RLock()
	snaps := make([]schema.RunSnapshot, 0, len(e.runs))
	for _, run := range e.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		snaps = append(snaps, run.Snapshot())
	}
	e.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].StartedAt.Before(snaps[j].StartedAt)
		}
		return snaps[i].RunID < snaps[j].RunID
	})
	return snaps
}

// CancelRun requests cancellation of an in-flight run. The run observes the
// request between node dispatches (or mid-delay) and finishes as Failed with
// a cancellation error. Terminal runs cannot be cancelled.
func (e *Engine) CancelRun(runID string) error {
	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	if run.Status().Terminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run %q already %s", runID, run.Status())
	}
	run.cancel()
	return nil
}

// PoolMetrics returns a snapshot of the run pool metrics.
func (e *Engine) PoolMetrics() PoolMetrics {
	return e.pool.Metrics()
}

// Shutdown cancels all in-flight runs and waits for them to finish.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	for _, run := range e.runs {
		if !run.Status().Terminal() && run.cancel != nil {
			run.cancel()
		}
	}
	e.mu.RUnlock()
	e.pool.Shutdown()
}

// execute walks the graph for one run. It is the only goroutine mutating the
// run; everything it records is visible to snapshots through the run's lock.
// A panic escaping a node handler fails the run instead of stranding it in
// Running.
func (e *Engine) execute(ctx context.Context, wf *graph.Workflow, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.fail(context.WithoutCancel(ctx), run,
				schema.NewErrorf(schema.ErrCodeExecution, "run handler panic: %v", r))
		}
	}()

	eng := e.guardEngine(wf)
	log := logging.LogWith(ctx, e.log)

	run.setRunning()
	e.emit(ctx, run, schema.EventRunStarted, "", map[string]any{"workflow_id": wf.ID})
	log.Info("run started", "workflow", wf.Name)

	node := wf.StartNode()
	if node == nil {
		return e.fail(ctx, run, schema.NewError(schema.ErrCodeValidation, "workflow has no start node"))
	}

	for {
		// Cancellation is observed between dispatches.
		if ctx.Err() != nil {
			run.finish(schema.RunStatusFailed, "run cancelled")
			e.emit(context.WithoutCancel(ctx), run, schema.EventRunCancelled, node.ID, nil)
			e.persistRunTerminal(run)
			log.Info("run cancelled", "node", node.ID)
			return schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithNode(node.ID)
		}

		run.setCurrent(node.ID)
		nodeCtx := logging.WithNodeID(ctx, node.ID)
		e.emit(nodeCtx, run, schema.EventNodeStarted, node.ID, nil)

		started := time.Now().UTC()
		output, err := e.dispatch(nodeCtx, node, run, eng)
		ended := time.Now().UTC()

		exec := NodeExecution{
			NodeID:      node.ID,
			NodeName:    node.Name,
			NodeType:    node.Type,
			StartedAt:   started,
			CompletedAt: ended,
			DurationMs:  ended.Sub(started).Milliseconds(),
		}

		if err != nil {
			exec.Status = schema.NodeExecFailed
			exec.Error = err.Error()
			run.appendHistory(exec)
			e.emit(context.WithoutCancel(nodeCtx), run, schema.EventNodeFailed, node.ID,
				map[string]any{"error": err.Error()})
			return e.fail(nodeCtx, run, err)
		}

		run.recordOutput(node.ID, output)
		exec.Status = schema.NodeExecCompleted
		run.appendHistory(exec)
		e.emit(nodeCtx, run, schema.EventNodeCompleted, node.ID, nil)

		if node.Type == schema.NodeTypeEnd {
			return e.complete(ctx, run, node.ID, log)
		}

		nextID, ok := selectNext(ctx, wf, node, output, run.Variables(), eng)
		if !ok {
			// Dead end: no eligible outgoing flow terminates the run cleanly.
			return e.complete(ctx, run, node.ID, log)
		}

		next, exists := wf.Node(nextID)
		if !exists {
			return e.fail(nodeCtx, run,
				schema.NewErrorf(schema.ErrCodeNotFound, "flow target %q does not exist", nextID).WithNode(node.ID))
		}
		node = next
	}
}

func (e *Engine) complete(ctx context.Context, run *Run, nodeID string, log *slog.Logger) error {
	run.finish(schema.RunStatusCompleted, "")
	e.emit(ctx, run, schema.EventRunCompleted, nodeID, nil)
	e.persistRunTerminal(run)
	log.Info("run completed", "last_node", nodeID, "history", len(run.History()))
	return nil
}

func (e *Engine) fail(ctx context.Context, run *Run, err error) error {
	run.finish(schema.RunStatusFailed, err.Error())
	e.emit(context.WithoutCancel(ctx), run, schema.EventRunFailed, "", map[string]any{"error": err.Error()})
	e.persistRunTerminal(run)
	logging.LogWith(ctx, e.log).Error("run failed", "error", err)
	return err
}

// guardEngine picks the guard evaluator for a workflow's declared language.
func (e *Engine) guardEngine(wf *graph.Workflow) expressions.Engine {
	lang := wf.ExpressionLanguage
	if lang == "" {
		lang = e.cfg.DefaultExpressionLanguage
	}
	if lang == expressions.LangCEL && e.celEng != nil {
		return e.celEng
	}
	return e.exprEng
}

// --- Persistence (best-effort; the engine works without a store) ---

func (e *Engine) emit(ctx context.Context, run *Run, eventType, nodeID string, payload map[string]any) {
	if e.events != nil {
		evt := streaming.Event{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			NodeID:     nodeID,
			Type:       eventType,
			Payload:    payload,
			At:         time.Now().UTC(),
		}
		if err := e.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
			e.log.Warn("publish run event failed", "run_id", run.ID, "type", eventType, "error", err)
		}
	}

	if e.store == nil {
		return
	}
	var raw json.RawMessage
	if len(payload) > 0 {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	event := &store.RunEvent{RunID: run.ID, Type: eventType, NodeID: nodeID, Payload: raw}
	if err := e.store.AppendEvent(context.WithoutCancel(ctx), event); err != nil {
		e.log.Warn("append run event failed", "run_id", run.ID, "type", eventType, "error", err)
	}
}

func (e *Engine) persistWorkflow(ctx context.Context, wf *graph.Workflow) {
	if e.store == nil {
		return
	}
	doc, err := json.Marshal(wf.ToDocument())
	if err != nil {
		e.log.Warn("marshal workflow document failed", "workflow_id", wf.ID, "error", err)
		return
	}
	rec := &store.WorkflowRecord{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Document:    doc,
		Version:     wf.Version,
		Tags:        wf.Tags,
	}
	if err := e.store.SaveWorkflow(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Warn("persist workflow failed", "workflow_id", wf.ID, "error", err)
	}
}

func (e *Engine) persistRunCreated(ctx context.Context, run *Run) {
	if e.store == nil {
		return
	}
	vars, _ := json.Marshal(run.Variables())
	rec := &store.RunRecord{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Status:     string(schema.RunStatusCreated),
		Variables:  vars,
	}
	if err := e.store.CreateRun(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Warn("persist run failed", "run_id", run.ID, "error", err)
	}
}

func (e *Engine) persistRunTerminal(run *Run) {
	if e.store == nil {
		return
	}
	snap := run.Snapshot()
	status := string(snap.Status)
	vars, _ := json.Marshal(run.Variables())
	results, _ := json.Marshal(run.Results())
	update := store.RunUpdate{
		Status:      &status,
		CurrentNode: &snap.CurrentNode,
		Variables:   vars,
		Results:     results,
		CompletedAt: snap.CompletedAt,
	}
	if snap.Error != "" {
		update.Error = &snap.Error
	}
	if err := e.store.UpdateRun(context.Background(), run.ID, update); err != nil {
		e.log.Warn("persist run update failed", "run_id", run.ID, "error", err)
	}
}
