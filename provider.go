package capyscript

import "context"

// Command describes the process a script is run against.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the provider's environment
}

// Argv returns the command line as a single slice.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

type Provider interface {
	StartCommand(ctx context.Context, cmd Command) (InteractiveSession, error)
}

type PreparableProvider interface {
	Provider
	Prepare() error
	Cleanup() error
}

// InteractiveSession is a running process. Stdout and Stderr deliver raw
// chunks and are closed once the corresponding stream reaches EOF.
//
// Kill asks the process to terminate (SIGTERM). ForceKill ends it without
// giving it a chance to refuse (SIGKILL).
type InteractiveSession interface {
	Write(input string) error

	Stdout() <-chan string
	Stderr() <-chan string

	Wait() (exitCode int, err error)
	Interrupt() error
	Kill() error
	ForceKill() error
}
