package schema

import "fmt"

// ValidationSeverity distinguishes blocking errors from advisory warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue locates one problem found while checking a workflow
// document or graph. Path uses dotted notation ("nodes.check", "flows[2]").
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult collects every issue the validation pipeline found.
// Warnings never block registration; errors do.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether the result carries no errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records a blocking issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, issue(path, code, message, SeverityError))
}

// AddWarning records an advisory issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, issue(path, code, message, SeverityWarning))
}

// Merge folds another result's issues into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError returns nil when the result is valid, otherwise a VALIDATION_ERROR
// FlowError whose details carry the full issue lists.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if n := len(r.Errors); n > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", n)
	}

	return NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}

func issue(path, code, message string, sev ValidationSeverity) ValidationIssue {
	return ValidationIssue{Path: path, Code: code, Message: message, Severity: sev}
}
