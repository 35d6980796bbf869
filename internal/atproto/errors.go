package atproto

import (
	"errors"
	"fmt"
)

// Kind classifies a failed XRPC operation. The set is closed: callers switch
// on the kind to decide whether a failure is terminal for the invocation.
type Kind int

const (
	// KindTransport is a network, DNS, TLS or timeout failure.
	KindTransport Kind = iota
	// KindAuth is a non-200 response on a session call.
	KindAuth
	// KindInvalidToken means the server returned tokens that fail validation.
	KindInvalidToken
	// KindInvalidResponse means a response payload is missing required
	// fields or fails validation.
	KindInvalidResponse
	// KindExpiredToken is the server-signaled token expiry on an
	// authenticated call. The only kind that triggers automatic recovery.
	KindExpiredToken
	// KindPublish is a terminal failure to create a record, including a
	// second expiry after the single allowed retry.
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindInvalidToken:
		return "invalid_token"
	case KindInvalidResponse:
		return "invalid_response"
	case KindExpiredToken:
		return "expired_token"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Error is a failed XRPC operation with its classification.
type Error struct {
	Kind   Kind
	Op     string // XRPC method, e.g. "com.atproto.server.createSession"
	Status int    // HTTP status when the server responded, 0 otherwise
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
