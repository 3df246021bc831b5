// Package expressions provides the restricted evaluators used for edge
// guards, condition nodes and data transforms. Expressions are evaluated by
// a small sandboxed interpreter, never by a host-language eval.
package expressions

import "context"

// Engine evaluates an expression against a flat variable mapping.
// Implementations: Expr (default guard language), CEL (alternate guard
// language), GoJQ (data transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)
}

// Language identifiers accepted in workflow documents.
const (
	LangExpr = "expr"
	LangCEL  = "cel"
)

// ForLanguage returns the guard engine for a workflow's declared expression
// language. Unknown or empty values fall back to Expr.
func ForLanguage(lang string) Engine {
	if lang == LangCEL {
		if e, err := NewCELEngine(); err == nil {
			return e
		}
	}
	return NewExprEngine()
}

// EvalBool evaluates an expression and coerces the result to a boolean.
// It is the fail-safe entry point for branch guards and condition nodes:
// malformed expressions, evaluation errors and non-boolean results all
// degrade to false instead of propagating.
func EvalBool(ctx context.Context, e Engine, expression string, vars map[string]any) bool {
	if expression == "" {
		return false
	}
	out, err := e.Evaluate(ctx, expression, vars)
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}
