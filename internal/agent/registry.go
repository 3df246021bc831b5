package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/autoflowai/viflow/pkg/schema"
)

// Registry is a thread-safe Executor that routes tasks to per-agent
// handlers registered by the host application.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Executor),
	}
}

// Register adds a handler for an agent ref. Returns error on duplicate ref.
func (r *Registry) Register(agentRef string, handler Executor) error {
	if handler == nil {
		return schema.NewError(schema.ErrCodeValidation, "agent handler is nil")
	}
	if agentRef == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent ref is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[agentRef]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent %q already registered", agentRef)
	}

	r.handlers[agentRef] = handler
	return nil
}

// Execute routes the task to the handler registered for agentRef.
func (r *Registry) Execute(ctx context.Context, agentRef string, task Task) (map[string]any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[agentRef]
	r.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeAgentUnavailable, "agent %q not registered", agentRef)
	}
	return handler.Execute(ctx, agentRef, task)
}

// List returns all registered agent refs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

var _ Executor = (*Registry)(nil)
