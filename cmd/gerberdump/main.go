package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/afero"
)

// ExitError carries the process exit code of a failed run.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const (
	exitOK       = 0
	exitProblems = 1
	exitUsage    = 2
)

func usageError(format string, a ...interface{}) *ExitError {
	return &ExitError{Code: exitUsage, Message: fmt.Sprintf(format, a...)}
}

func main() {
	code, msg := exitStatus(run(os.Stdout, os.Args[1:]))
	glog.Flush()
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps the result of a run to a process exit code and the
// message to print on stderr.
func exitStatus(err error) (int, string) {
	if err == nil {
		return exitOK, ""
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, exitErr.Message
	}
	return exitProblems, err.Error()
}

// run parses args and analyzes the files found on the host filesystem.
func run(out io.Writer, args []string) error {
	return execute(out, afero.NewOsFs(), args)
}

func execute(out io.Writer, fs afero.Fs, args []string) error {
	cmd := newRootCmd(out, fs)
	cmd.SetArgs(args)
	return cmd.Execute()
}
