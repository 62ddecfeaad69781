// Package debug provides the assertion and trace-logging primitives the
// debug-checked allocator variants use: Assert panics on a violated
// invariant instead of returning a sentinel error, and Logger prefixes
// trace output so a debug build's log interleaves legibly with the rest
// of a program's output.
package debug

import (
	"bytes"
	"fmt"
	"io"

	"vmem/kernel"
)

// Assert panics with err if cond is false. Debug-tier allocators call
// Assert where the release tier would instead return a sentinel zero
// value (kernel.NoAddress, a zero bitscan.Location): a violated invariant
// is a programming error, not a recoverable condition, once debugging
// aliases are enabled.
func Assert(cond bool, err *kernel.Error) {
	if !cond {
		panic(err)
	}
}

// Logger writes trace lines to Sink, injecting Prefix at the start of
// every line. It is safe to share a single Logger across every operation
// of one allocator; it is not safe for concurrent use, matching the
// allocators' own no-thread-safety contract.
type Logger struct {
	// Sink receives every written line. A nil Sink discards output.
	Sink io.Writer

	// Prefix is injected at the beginning of each line written.
	Prefix []byte

	bytesAfterPrefix int
}

// Write implements io.Writer, injecting Prefix at the start of every
// line. The injected prefix bytes are not counted in the returned n.
func (w *Logger) Write(p []byte) (int, error) {
	if w.Sink == nil {
		return len(p), nil
	}
	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		if _, err := w.Sink.Write(w.Prefix); err != nil {
			return 0, err
		}
	}

	var written int
	for len(p) > 0 {
		nl := bytes.IndexByte(p, '\n')
		if nl < 0 {
			n, err := w.Sink.Write(p)
			written += n
			w.bytesAfterPrefix += n
			return written, err
		}

		n, err := w.Sink.Write(p[:nl+1])
		written += n
		if err != nil {
			return written, err
		}
		w.bytesAfterPrefix = 0
		p = p[nl+1:]

		if len(p) != 0 {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Tracef formats according to format and writes the result through the
// Logger, followed by a newline if format doesn't already end in one.
func (w *Logger) Tracef(format string, args ...interface{}) {
	if w.Sink == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	w.Write([]byte(msg))
}
