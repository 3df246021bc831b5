package expressions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"context"

	"github.com/google/cel-go/cel"

	"github.com/autoflowai/viflow/pkg/schema"
)

// CELEngine is the alternate guard evaluator, built on Google's Common
// Expression Language. Unlike the Expr engine, CEL requires variable
// declarations at compile time, so programs are compiled per
// (expression, variable-key-set) pair and cached.
// Thread-safe.
type CELEngine struct {
	base *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL guard engine with a sandboxed base
// environment. Run variables are declared dynamically per evaluation.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		base:  env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return LangCEL
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the provided variables. Every key of vars is declared as a
// top-level dyn variable.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	keys := sortedKeys(vars)
	prg, err := e.getOrCompile(expression, keys)
	if err != nil {
		return nil, err
	}

	activation := vars
	if activation == nil {
		activation = map[string]any{}
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a
// new one. The cache key includes the variable key set because declarations
// are part of the compiled environment.
func (e *CELEngine) getOrCompile(expression string, keys []string) (cel.Program, error) {
	cacheKey := expression + "\x00" + strings.Join(keys, "\x00")

	e.mu.RLock()
	if prg, ok := e.cache[cacheKey]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[cacheKey]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, cel.Variable(k, cel.DynType))
	}
	env, err := e.base.Extend(opts...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL environment error for %q: %s", expression, err.Error()).WithCause(err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[cacheKey] = prg
	return prg, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Engine = (*CELEngine)(nil)
