package capyscript

import (
	"context"
	"log/slog"
	"testing"
)

type Runner interface {
	Command(name string, args ...string) ScriptBuilder
}

// Executable runs a declared script. Done freezes the script, starts the
// process and blocks until the script and the process have both finished.
type Executable interface {
	Done(ctx context.Context) error
	Run(t *testing.T)
	Transcript() []Line
}

type RunnerOption func(*runner)

// WithLogger sets the logger scripts report their progress to.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *runner) {
		r.log = l
	}
}

type runner struct {
	p   Provider
	log *slog.Logger
}

func (r *runner) Command(name string, args ...string) ScriptBuilder {
	return &scriptBuilder{
		provider: r.p,
		cmd:      Command{Name: name, Args: args},
		log:      r.log,
		grace:    DefaultGracePeriod,
	}
}

func NewRunner(p Provider, opts ...RunnerOption) Runner {
	r := &runner{p: p, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
