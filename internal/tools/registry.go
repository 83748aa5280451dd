// Package tools holds the model-callable handler families and the shared
// types handlers use to report structured outcomes.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// Core tool names routed by the dispatcher's fallback table.
const (
	ToolReadFile       = "read_file"
	ToolWriteFile      = "write_file"
	ToolEditFile       = "edit_file"
	ToolListDirectory  = "list_directory"
	ToolSearchFiles    = "search_files"
	ToolWebSearch      = "web_search"
	ToolFetchPage      = "fetch_page"
	ToolInvokeAgent    = "invoke_agent"
	ToolSearchMessages = "search_messages"
	ToolSearchMemory   = "search_memory"
)

// Tool is one model-callable capability.
type Tool interface {
	Definition() schema.ToolDefinition
	Execute(ctx context.Context, args Args) (Output, error)
}

// Output is a successful handler result.
//
// Files lists paths the handler read or wrote; the dispatcher forwards them
// to observers and never to the model.
type Output struct {
	Text     string
	Metadata map[string]any
	Files    []string
}

// Text is shorthand for an Output carrying only text.
func Text(s string) Output { return Output{Text: s} }

// Textf formats an Output.
func Textf(format string, args ...any) Output { return Output{Text: fmt.Sprintf(format, args...)} }

// ErrorKind classifies a handler failure for the orchestration loop.
type ErrorKind string

const (
	KindToolNotFound     ErrorKind = "tool_not_found"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindExecutionFailed  ErrorKind = "execution_failed"
	KindNotFound         ErrorKind = "not_found"
	KindUnavailable      ErrorKind = "unavailable"
	KindSessionNotFound  ErrorKind = "session_not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindSessionClosed    ErrorKind = "session_closed"
)

// Error is a classified handler failure.
type Error struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error with a formatted message.
func NewError(kind ErrorKind, retryable bool, format string, args ...any) *Error {
	return &Error{Kind: kind, Retryable: retryable, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgs reports bad or missing arguments. The same call will fail again.
func InvalidArgs(format string, args ...any) *Error {
	return NewError(KindInvalidArguments, false, format, args...)
}

// NotFound reports a missing record.
func NotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, false, format, args...)
}

// Failed wraps err as a retryable execution failure.
func Failed(err error) *Error {
	return &Error{Kind: KindExecutionFailed, Retryable: true, Err: err}
}

// Classify returns the kind and retry flag of err. Unclassified errors are
// treated as retryable execution failures.
func Classify(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, te.Retryable
	}
	return KindExecutionFailed, true
}
