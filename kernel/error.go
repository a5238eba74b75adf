// Package kernel provides the common types shared by all kernel subsystems.
package kernel

// Error describes a recoverable kernel error. All kernel errors must be
// defined as global variables that are pointers to the Error structure so
// that raising an error never allocates and callers can compare errors by
// pointer identity.
//
// Unrecoverable conditions (bookkeeping corruption, double frees and the
// like) are never expressed as Error values; they panic at the point of
// detection instead.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
