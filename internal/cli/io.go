package cli

import (
	"fmt"
	"io"
)

// IO bundles the streams a command may use.
type IO struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewIO creates a new IO instance. in may be nil.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// In returns stdin, or an empty reader if none was given.
func (o *IO) In() io.Reader {
	if o.in == nil {
		return eofReader{}
	}

	return o.in
}

// Out returns the stdout writer.
func (o *IO) Out() io.Writer {
	return o.out
}

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Warn writes "warning: msg" to stderr. Warnings do not change the exit code.
func (o *IO) Warn(msg string) {
	_, _ = fmt.Fprintln(o.errOut, "warning:", msg)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
