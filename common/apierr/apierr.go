// Package apierr implements the error-kind taxonomy shared by the data
// plane, the node agent, the orchestrator, and the controller.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 of the control-plane spec requires,
// so callers can distinguish failure modes without string matching.
type Kind string

const (
	BadRequest Kind = "bad_request" // an invariant was violated in user input
	NotFound   Kind = "not_found"   // an id was not known
	Capacity   Kind = "capacity"    // no compatible node/domain was found
	Transport  Kind = "transport"   // a peer was unreachable
	Runtime    Kind = "runtime"     // an instance was rejected by its sandbox
	Internal   Kind = "internal"    // an internal invariant was broken
)

// Error is the concrete error type returned across every internal API
// boundary and surfaced externally as ResponseError{summary, detail}.
type Error struct {
	Kind    Kind
	Summary string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Summary, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Summary)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind. detail is optional free-form text;
// BadRequest and Capacity must populate it per §7's user-visible-behaviour
// rule — callers that omit it get an empty string rather than a panic, but
// should not omit it in practice for those two kinds.
func New(kind Kind, summary string, detail string) *Error {
	return &Error{Kind: kind, Summary: summary, Detail: detail}
}

// Wrap builds an Error that also carries the underlying cause for %w chains.
func Wrap(kind Kind, summary string, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Kind: kind, Summary: summary, Detail: detail, cause: cause}
}

func NewBadRequest(summary, detail string) *Error { return New(BadRequest, summary, detail) }
func NewNotFound(summary string) *Error            { return New(NotFound, summary, "") }
func NewCapacity(summary, detail string) *Error     { return New(Capacity, summary, detail) }
func NewTransport(summary string, cause error) *Error {
	return Wrap(Transport, summary, cause)
}
func NewRuntime(summary, detail string) *Error { return New(Runtime, summary, detail) }
func NewInternal(summary string, cause error) *Error {
	return Wrap(Internal, summary, cause)
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for unrecognized errors so every caller gets a Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ResponseError is the wire shape every external API returns on failure.
type ResponseError struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}

// ToResponse converts any error into the wire ResponseError shape.
func ToResponse(err error) ResponseError {
	var e *Error
	if errors.As(err, &e) {
		return ResponseError{Summary: e.Summary, Detail: e.Detail}
	}
	return ResponseError{Summary: err.Error()}
}
