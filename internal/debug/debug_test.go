package debug

import (
	"bytes"
	"errors"
	"testing"

	"vmem/kernel"
)

func TestAssert(t *testing.T) {
	Assert(true, nil) // must not panic

	defer func() {
		if recover() == nil {
			t.Fatal("expected Assert(false, ...) to panic")
		}
	}()
	Assert(false, &kernel.Error{Op: "test", Message: "boom"})
}

func TestLoggerWrite(t *testing.T) {
	specs := []struct {
		input string
		exp   string
	}{
		{"", ""},
		{"\n", "prefix: \n"},
		{"no line break anywhere", "prefix: no line break anywhere"},
		{"line feed at the end\n", "prefix: line feed at the end\n"},
		{
			"\nthe big brown\nfog jumped\nover the lazy\ndog",
			"prefix: \nprefix: the big brown\nprefix: fog jumped\nprefix: over the lazy\nprefix: dog",
		},
	}

	var buf bytes.Buffer
	w := Logger{Sink: &buf, Prefix: []byte("prefix: ")}

	for i, spec := range specs {
		buf.Reset()
		w.bytesAfterPrefix = 0

		wrote, err := w.Write([]byte(spec.input))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", i, err)
		}
		if got := len(spec.input); got != wrote {
			t.Errorf("[spec %d] expected %d bytes written; got %d", i, got, wrote)
		}
		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output %q; got %q", i, spec.exp, got)
		}
	}
}

func TestLoggerWriteError(t *testing.T) {
	expErr := errors.New("write failed")
	w := Logger{Sink: errWriter{expErr}, Prefix: []byte("prefix: ")}

	_, err := w.Write([]byte("the big brown\nfog jumped"))
	if err != expErr {
		t.Fatalf("expected %v; got %v", expErr, err)
	}
}

func TestLoggerNilSink(t *testing.T) {
	var w Logger
	if _, err := w.Write([]byte("anything")); err != nil {
		t.Fatalf("nil-sink Logger must not error: %v", err)
	}
	w.Tracef("anything %d", 1) // must not panic
}

type errWriter struct{ err error }

func (w errWriter) Write(_ []byte) (int, error) { return 0, w.err }
