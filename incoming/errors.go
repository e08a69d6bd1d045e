// Package incoming implements the ingestion state machine: scanning a
// directory of uploads, verifying and parsing signed manifests, staging and
// deduplicating referenced files, evaluating uploader permissions, and
// installing validated packages into one or more distributions' pool and
// index. It is the "core" named throughout SPEC_FULL.md, built around the
// arena+indices Candidate design rather than the cyclic pointer graph of
// reprepro's original incoming.c.
package incoming

import (
	"errors"
	"fmt"
)

// Kind classifies why processing a manifest failed, matching the
// propagation policy table exactly: each kind is fatal for the current
// manifest (never for the whole run), with Interrupted and BackendError
// additionally triggering rollback of any in-flight commit.
type Kind int

const (
	// OOM is unconditionally fatal for the current manifest.
	OOM Kind = iota
	// IoError is fatal for the current manifest; temp files are unlinked.
	IoError
	// Malformed covers bad manifest content, missing required fields,
	// grammar violations, and 8-bit filename bytes.
	Malformed
	// ChecksumMismatch is fatal for the manifest.
	ChecksumMismatch
	// Missing marks a referenced file absent from the incoming directory.
	Missing
	// PermissionDenied is fatal; it triggers on_deny cleanup if configured.
	PermissionDenied
	// Conflict is a policy disagreement: e.g. an architecture not carried
	// by any destination, or a forbidden component for a udeb.
	Conflict
	// Interrupted signals cancellation; it triggers rollback of the
	// in-flight commit only.
	Interrupted
	// BackendError is a pool/index/tracking backend failure; it triggers
	// rollback of whatever was committed during this manifest, then
	// on_error cleanup if configured.
	BackendError
)

func (k Kind) String() string {
	switch k {
	case OOM:
		return "oom"
	case IoError:
		return "io_error"
	case Malformed:
		return "malformed"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case Missing:
		return "missing"
	case PermissionDenied:
		return "permission_denied"
	case Conflict:
		return "conflict"
	case Interrupted:
		return "interrupted"
	case BackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the Kind the core uses to decide
// cleanup and rollback behavior. Use errors.As to recover the Kind from an
// error returned by any operation in this package.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error, wrapping a plain message with fmt.Errorf.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// wrapError builds an *Error around an existing error value.
func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error produced by this package; ok is false for any other error.
func KindOf(err error) (Kind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}
