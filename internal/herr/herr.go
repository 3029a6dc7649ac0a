// Package herr defines the error kinds shared across hearme's components.
package herr

import "errors"

type Kind int

const (
	Unsupported Kind = iota
	Permission
	Backend
	AlreadyRunning
	NoDevice
	BadTicket
	Transport
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Permission:
		return "permission"
	case Backend:
		return "backend"
	case AlreadyRunning:
		return "already running"
	case NoDevice:
		return "no device"
	case BadTicket:
		return "bad ticket"
	case Transport:
		return "transport"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can branch with
// herr.Is or errors.As without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}
