package validation

import (
	"github.com/autoflowai/viflow/internal/graph"
	"github.com/autoflowai/viflow/pkg/schema"
)

// ValidateWorkflow runs the semantic checks on an assembled graph. Used by
// the engine at registration time, where the graph was either built
// programmatically or already passed the structural stage.
func ValidateWorkflow(wf *graph.Workflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}
	return validateSemantic(wf)
}

// DocumentValidator orchestrates the two-stage pipeline for serialized
// workflow documents:
// 1. Structural (JSON Schema)
// 2. Semantic (graph checks on the decoded workflow)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewDocumentValidator creates a DocumentValidator.
func NewDocumentValidator() (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: the semantic stage is skipped because the
// graph may not even decode.
func (dv *DocumentValidator) Validate(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := validateStructural(dv.jsonSchema, doc)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(graph.FromDocument(doc)))
	return result
}

// validateStructural wraps JSONSchemaValidator.ValidateDocument, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(doc)
	if err == nil {
		return result
	}

	flowErr, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if flowErr.Details != nil {
		if violations, ok := flowErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, flowErr.Message)
	return result
}
