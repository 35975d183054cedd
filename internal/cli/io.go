package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// IO handles command input and output. Warnings are collected and printed
// to stderr both before the first output line and at the end, so they stay
// visible when output is piped through head or tail.
type IO struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool

	lines *bufio.Reader
}

// NewIO creates a new IO instance. in may be nil, in which case every
// question is answered with no.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// Warn records a warning. Any warning makes the command exit with code 1
// while its output is still printed.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println writes to stdout. On first call, any collected warnings
// are printed to stderr first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout. On first call, any collected
// warnings are printed to stderr first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Write writes raw bytes to stdout.
func (o *IO) Write(p []byte) (int, error) {
	o.flushWarningsStart()
	return o.out.Write(p)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Confirm asks a yes/no question on stderr and reads the answer. Terminals
// get a line editor; other input is read line by line. End of input means
// no.
func (o *IO) Confirm(question string) bool {
	prompt := question + " [y/N] "

	var (
		answer string
		err    error
	)

	if f, ok := o.in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		line := liner.NewLiner()
		line.SetCtrlCAborts(true)

		answer, err = line.Prompt(prompt)
		_ = line.Close()
	} else {
		answer, err = o.readLine(prompt)
	}

	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (o *IO) readLine(prompt string) (string, error) {
	if o.in == nil {
		return "", io.EOF
	}

	if o.lines == nil {
		o.lines = bufio.NewReader(o.in)
	}

	_, _ = fmt.Fprint(o.errOut, prompt)

	line, err := o.lines.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}

	_, _ = fmt.Fprintln(o.errOut)

	return line, err
}

// Finish prints warnings to stderr and returns exit code.
// Returns 1 if any warnings, 0 otherwise.
func (o *IO) Finish() int {
	// If no output happened but we have warnings, print them at "start" position
	o.flushWarningsStart()

	// Always print at end
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			_, _ = fmt.Fprintln(o.errOut, "warning:", w)
		}

		o.started = true
	}
}
