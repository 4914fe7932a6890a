package cluster

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kind classifies a cluster operation failure.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindTimeout          Kind = "Timeout"
	KindPermissionDenied Kind = "PermissionDenied"
	KindConflict         Kind = "Conflict"
	KindUnknown          Kind = "Unknown"
)

// Error is the gateway-boundary error type. The orchestrator branches on
// Kind, never on API server error strings.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps err with an operation name and a Kind derived from the
// apimachinery error predicates. Returns nil for a nil err.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindUnknown
	switch {
	case apierrors.IsNotFound(err):
		kind = KindNotFound
	case apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err):
		kind = KindConflict
	case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
		kind = KindPermissionDenied
	case apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries a cluster Error of the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}
