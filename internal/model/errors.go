package model

import (
    "errors"
    "fmt"
    "strings"
)

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
    Field   string
    Message string
}

func (e *ValidationError) Error() string {
    if e.Field == "" { return e.Message }
    return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
    return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
    Kind string
    ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// UpstreamError is a failure of an outbound service such as the trip optimizer.
type UpstreamError struct {
    Service string
    Status  int
    Detail  string
    Err     error
}

func (e *UpstreamError) Error() string {
    var b strings.Builder
    b.WriteString(e.Service)
    b.WriteString(" failed")
    if e.Status != 0 { fmt.Fprintf(&b, " (status %d)", e.Status) }
    if e.Detail != "" { b.WriteString(": " + e.Detail) }
    if e.Err != nil { b.WriteString(": " + e.Err.Error()) }
    return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PreconditionError names the stops that block an operation.
type PreconditionError struct {
    Reason  string
    StopIDs []string
}

func (e *PreconditionError) Error() string {
    return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.StopIDs, ", "))
}
