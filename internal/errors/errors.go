// Package errors defines the phase-tagged error taxonomy for the compile
// pipeline.
//
// Every failure that crosses the pipeline's public boundary is exactly one
// CompileError carrying the phase at which it occurred. Collaborator errors
// are caught at their owning phase boundary and re-wrapped here; no untyped
// failure may escape the pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase identifies the pipeline stage at which a failure occurred.
type Phase string

const (
	PhaseValidation Phase = "validation"
	PhaseTranspile  Phase = "transpile"
	PhaseExecution  Phase = "execution"
	PhaseRender     Phase = "render"

	// PhaseCompile is reserved. No pipeline path produces it today; it is
	// kept so the wire format stays stable if an aggregate failure phase
	// is introduced later. See DESIGN.md.
	PhaseCompile Phase = "compile"
)

// DefaultFormat tags errors produced from TSX-flavoured source.
const DefaultFormat = "tsx"

// CompileError is the single failure type that crosses the pipeline
// boundary.
type CompileError struct {
	Format  string
	Phase   Phase
	Message string
	Cause   error

	// Timeout marks execution failures caused by exceeding the wall-clock
	// limit, so callers distinguish them without matching message text.
	Timeout bool
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var parts []string

	if e.Format != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Format))
	}
	if e.Phase != "" {
		parts = append(parts, string(e.Phase)+":")
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// Is matches errors by phase, so callers can compare against a phase
// sentinel without caring about the message.
func (e *CompileError) Is(target error) bool {
	var t *CompileError
	if errors.As(target, &t) {
		return e.Phase == t.Phase && (t.Message == "" || t.Message == e.Message)
	}

	return false
}

// NewValidationError reports malformed or oversized input. The caller must
// resubmit corrected input; validation failures are never retried.
func NewValidationError(message string) *CompileError {
	return &CompileError{
		Format:  DefaultFormat,
		Phase:   PhaseValidation,
		Message: message,
	}
}

// NewTranspileError surfaces a syntax diagnostic verbatim.
func NewTranspileError(message string) *CompileError {
	return &CompileError{
		Format:  DefaultFormat,
		Phase:   PhaseTranspile,
		Message: message,
	}
}

// NewExecutionError reports a failure during sandboxed execution: a
// disallowed import, a thrown error, or a resource-limit breach.
func NewExecutionError(message string, cause error) *CompileError {
	return &CompileError{
		Format:  DefaultFormat,
		Phase:   PhaseExecution,
		Message: message,
		Cause:   cause,
	}
}

// NewExecutionTimeout reports a forcibly terminated run. The Timeout flag
// is the authoritative signal; the message is for humans.
func NewExecutionTimeout(message string) *CompileError {
	return &CompileError{
		Format:  DefaultFormat,
		Phase:   PhaseExecution,
		Message: message,
		Timeout: true,
	}
}

// NewRenderError reports that execution succeeded but converting the result
// to markup failed. This indicates contract misuse by the template, not a
// security issue.
func NewRenderError(message string, cause error) *CompileError {
	return &CompileError{
		Format:  DefaultFormat,
		Phase:   PhaseRender,
		Message: message,
		Cause:   cause,
	}
}

// FromError coerces an arbitrary collaborator error into a CompileError at
// the given phase. An error that already is a CompileError passes through
// unchanged, preserving the phase of the stage that first classified it.
func FromError(phase Phase, err error) *CompileError {
	if err == nil {
		return nil
	}

	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}

	return &CompileError{
		Format:  DefaultFormat,
		Phase:   phase,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsTimeout reports whether err is a timeout-classified execution error.
func IsTimeout(err error) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Timeout
	}

	return false
}

// PhaseOf returns the phase of a CompileError, or an empty Phase for any
// other error.
func PhaseOf(err error) Phase {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Phase
	}

	return ""
}
