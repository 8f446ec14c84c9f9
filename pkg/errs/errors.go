package errs

import (
	"errors"
	"fmt"
)

// Code classifies every error that crosses the transfer contract boundary.
// The set is closed: anything a transport or the coordinator cannot map onto
// a more specific code is reported as Unknown.
type Code int

const (
	// Unknown covers unclassified failures.
	Unknown Code = iota
	// PermissionDenied means a capability check failed before any hardware call.
	PermissionDenied
	// PeerNotFound means the selected peer is no longer known to the session.
	PeerNotFound
	// ConnectionFailed means the medium reported a failure while connecting.
	ConnectionFailed
	// ConnectionLost means an established stream ended before the transfer did.
	ConnectionLost
	// FileIO means a local filesystem read or write failed.
	FileIO
	// Timeout means a bounded wait elapsed without progress.
	Timeout
	// Unsupported means no medium can serve the requested operation.
	Unsupported
)

// String returns the canonical name of the code.
func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PeerNotFound:
		return "peer_not_found"
	case ConnectionFailed:
		return "connection_failed"
	case ConnectionLost:
		return "connection_lost"
	case FileIO:
		return "file_io"
	case Timeout:
		return "timeout"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a classified transfer error with an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a classified error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CanRetry reports whether retrying the failed operation is meaningful
// without external remediation. Permission denials and unsupported
// operations need a setting toggled first.
func (e *Error) CanRetry() bool {
	return e.Code != PermissionDenied && e.Code != Unsupported
}

// From coerces an arbitrary error into a classified one. Errors that are
// already classified pass through unchanged; everything else becomes Unknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Code: Unknown, Message: err.Error(), Cause: err}
}
