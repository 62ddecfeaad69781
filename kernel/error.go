package kernel

// Error is a structured error carrying the operation that failed and a
// human-readable message. All allocator-level errors are pre-allocated
// package-level *Error values, the way gopheros/kernel.Error is used, so
// that debug-tier assertions never need to allocate on the failure path.
type Error struct {
	// Op names the package/operation where the error originated, e.g.
	// "linear.Push" or "vm/hostvm.Commit".
	Op string

	// Message describes the failure.
	Message string

	// Err, if set, is the underlying cause (e.g. a syscall error
	// surfaced by a vm.Provider).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// WithErr returns a copy of e with Err set to cause. Used to attach the
// provider-specific error (e.g. an errno) to a stable sentinel without
// mutating the shared sentinel value.
func (e *Error) WithErr(cause error) *Error {
	return &Error{Op: e.Op, Message: e.Message, Err: cause}
}
