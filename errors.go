package capyscript

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrTimeout is wrapped by the error Done returns when the run
	// outlives the timeout set with WithTimeout.
	ErrTimeout = errors.New("capyscript: timed out")

	// ErrKilled is returned by Match.SendInput after a kill.
	ErrKilled = errors.New("capyscript: process killed")
)

// UsageError reports a misuse of the script builder. No process is
// spawned when Done fails with a UsageError.
type UsageError struct {
	Method string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("capyscript: %s: %s", e.Method, e.Reason)
}

// MismatchError is a strict line expectation that received another line.
type MismatchError struct {
	Index    int // position of the item in the script
	Expected string
	Got      Line
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("capyscript: item %d: expected line %q, got %q on %s",
		e.Index, e.Expected, e.Got.Content, e.Got.Stream)
}

// UnmetError reports script items still pending when the process output
// ended.
type UnmetError struct {
	Index   int
	Item    string
	Pending int
}

func (e *UnmetError) Error() string {
	return fmt.Sprintf("capyscript: output ended with %d pending item(s), first is item %d: %s",
		e.Pending, e.Index, e.Item)
}

// ExitError is an exit status the script does not accept.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "capyscript: unexpected exit status " + strconv.Itoa(e.Code)
}

// ExitCode extracts the exit status from an error chain holding an
// *ExitError.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
