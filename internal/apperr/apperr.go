// Package apperr defines the error kinds surfaced by the workspace client.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindServer     Kind = "server"
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindStorage    Kind = "storage"
	KindCancelled  Kind = "cancelled"
)

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Kind, e.Status)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Network wraps a transport failure.
func Network(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(op, err)
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Server reports a non-2xx response.
func Server(op string, status int, detail string) error {
	return &Error{Kind: KindServer, Op: op, Status: status, Detail: detail}
}

// Validation reports a failed pre-flight check.
func Validation(op, detail string) error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

// State reports a forbidden state transition.
func State(op, detail string) error {
	return &Error{Kind: KindState, Op: op, Detail: detail}
}

// Storage reports a persistence failure.
func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// Cancelled reports an aborted operation.
func Cancelled(op string, err error) error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return ""
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsCancelled reports whether err stems from an aborted request.
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}

// Generic phrases shown when the server gives no detail.
const (
	msgNetwork = "Could not reach the AI Office server."
	msgServer  = "The server could not complete the request."
	msgGeneric = "Something went wrong."
)

// UserMessage returns the text to show in a banner or inline message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return msgGeneric
	}
	if e.Detail != "" {
		return e.Detail
	}
	switch e.Kind {
	case KindNetwork:
		return msgNetwork
	case KindServer:
		return msgServer
	}
	return msgGeneric
}
