package models

import (
	"errors"
	"fmt"
	"strings"
)

// PreconditionError reports a stage invoked while the project is not in the
// status the stage consumes. It is never retried.
type PreconditionError struct {
	ProjectID string
	Stage     StageName
	Want      []Status
	Got       Status
	Reason    string
}

func (e *PreconditionError) Error() string {
	prefix := "precondition failed"
	if e.Stage != "" {
		prefix += " for " + string(e.Stage)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s on project %s: %s", prefix, e.ProjectID, e.Reason)
	}
	want := make([]string, len(e.Want))
	for i, s := range e.Want {
		want[i] = string(s)
	}
	return fmt.Sprintf("%s on project %s: status is %s, want %s",
		prefix, e.ProjectID, e.Got, strings.Join(want, " or "))
}

// ExtractionError covers unsupported types, missing uploads and empty or
// near-empty extractions.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string { return kindMessage("extraction error", e.Reason, e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// TransformationError covers credential problems, external call failures and
// empty narrator output.
type TransformationError struct {
	Reason string
	Err    error
}

func (e *TransformationError) Error() string {
	return kindMessage("transformation error", e.Reason, e.Err)
}
func (e *TransformationError) Unwrap() error { return e.Err }

// StructuringError carries every issue reported by document validation.
type StructuringError struct {
	Reason string
	Issues []string
}

func (e *StructuringError) Error() string {
	msg := "structuring error"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Issues) > 0 {
		msg += ": " + strings.Join(e.Issues, "; ")
	}
	return msg
}

// RenderError covers an empty artifact location and artifacts that fail the
// existence or signature checks.
type RenderError struct {
	Reason string
	Err    error
}

func (e *RenderError) Error() string { return kindMessage("render error", e.Reason, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

func kindMessage(kind, reason string, err error) string {
	switch {
	case reason != "" && err != nil:
		return fmt.Sprintf("%s: %s: %v", kind, reason, err)
	case reason != "":
		return kind + ": " + reason
	case err != nil:
		return fmt.Sprintf("%s: %v", kind, err)
	}
	return kind
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent or is a PreconditionError.
func IsPermanent(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return true
	}
	var pre *PreconditionError
	return errors.As(err, &pre)
}
