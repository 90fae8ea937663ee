package common

import "fmt"

// ErrType ...
type ErrType uint32

const (
	// UnsupportedProtocol means a node variant rejected the requested
	// anti-entropy protocol. It fails only the offending send call.
	UnsupportedProtocol ErrType = iota
	// CacheMiss means a snapshot key was unknown or already popped. It
	// indicates a protocol-ordering bug and is never retried.
	CacheMiss
	// InvalidConfig means construction-time parameters cannot produce a
	// valid assignment. It is checked eagerly, never deferred to runtime.
	InvalidConfig
)

// SimErr is the error type shared by the simulation core. The component
// records which part of the system raised it.
type SimErr struct {
	component string
	errType   ErrType
	detail    string
}

// NewSimErr ...
func NewSimErr(component string, errType ErrType, detail string) SimErr {
	return SimErr{
		component: component,
		errType:   errType,
		detail:    detail,
	}
}

// Error ...
func (e SimErr) Error() string {
	m := ""
	switch e.errType {
	case UnsupportedProtocol:
		m = "Unsupported Protocol"
	case CacheMiss:
		m = "Cache Miss"
	case InvalidConfig:
		m = "Invalid Config"
	}

	return fmt.Sprintf("%s, %s, %s", e.component, m, e.detail)
}

// Is checks that an error is of type SimErr and that its code matches the
// provided code.
func Is(err error, t ErrType) bool {
	simErr, ok := err.(SimErr)
	return ok && simErr.errType == t
}
