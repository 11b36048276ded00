package capyscript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/gobwas/glob"
)

type ScriptBuilder interface {
	Executable

	WithDir(dir string) ScriptBuilder
	WithEnv(env ...string) ScriptBuilder
	WithTimeout(duration time.Duration) ScriptBuilder
	WithGracePeriod(duration time.Duration) ScriptBuilder // SIGTERM to SIGKILL on abort
	WithNoise(patterns ...string) ScriptBuilder // replaces DefaultNoise

	ExpectExitCode(codes ...int) ScriptBuilder // replaces 0 and ExitCodeSIGTERM
	ExpectTranscriptSnapshot() ScriptBuilder

	NextLineIs(text string, callbacks ...Callback) ScriptBuilder
	WhenLineIs(text string, callbacks ...Callback) ScriptBuilder
	NextLineMatches(pattern string, callbacks ...Callback) ScriptBuilder
	WhenLineMatches(pattern string, callbacks ...Callback) ScriptBuilder
	Effect(action func(ctx context.Context) error) ScriptBuilder
	SendInput(text string) ScriptBuilder
	Interrupt() ScriptBuilder

	// Kill appends a terminal kill item. It only ends the declaration:
	// nothing runs until Done or Run is called on the result.
	Kill() Executable
}

type scriptBuilder struct {
	provider Provider
	cmd      Command
	log      *slog.Logger

	timeout   time.Duration
	grace     time.Duration
	noise     []string
	exitCodes []int
	snapshot  bool

	items      []Item
	err        error // first usage error made before the run
	started    atomic.Bool
	transcript []Line
}

// declare fails with a UsageError once the script has started.
func (b *scriptBuilder) declare(method string) {
	if b.started.Load() {
		panic(&UsageError{Method: method, Reason: "script already started"})
	}
}

func (b *scriptBuilder) fail(method string, err error) {
	if b.err == nil {
		b.err = &UsageError{Method: method, Reason: err.Error()}
	}
}

func (b *scriptBuilder) WithDir(dir string) ScriptBuilder {
	b.declare("WithDir")
	b.cmd.Dir = dir
	return b
}

func (b *scriptBuilder) WithEnv(env ...string) ScriptBuilder {
	b.declare("WithEnv")
	b.cmd.Env = append(b.cmd.Env, env...)
	return b
}

func (b *scriptBuilder) WithTimeout(duration time.Duration) ScriptBuilder {
	b.declare("WithTimeout")
	b.timeout = duration
	return b
}

func (b *scriptBuilder) WithGracePeriod(duration time.Duration) ScriptBuilder {
	b.declare("WithGracePeriod")
	if duration < 0 {
		b.fail("WithGracePeriod", fmt.Errorf("negative duration %s", duration))
		return b
	}
	b.grace = duration
	return b
}

func (b *scriptBuilder) WithNoise(patterns ...string) ScriptBuilder {
	b.declare("WithNoise")
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			b.fail("WithNoise", fmt.Errorf("invalid pattern %q: %w", p, err))
		}
	}
	b.noise = append([]string{}, patterns...)
	return b
}

func (b *scriptBuilder) ExpectExitCode(codes ...int) ScriptBuilder {
	b.declare("ExpectExitCode")
	b.exitCodes = append([]int{}, codes...)
	return b
}

func (b *scriptBuilder) ExpectTranscriptSnapshot() ScriptBuilder {
	b.declare("ExpectTranscriptSnapshot")
	b.snapshot = true
	return b
}

func (b *scriptBuilder) NextLineIs(text string, callbacks ...Callback) ScriptBuilder {
	b.declare("NextLineIs")
	b.items = append(b.items, ExpectLine{Text: text, Callback: chain(callbacks)})
	return b
}

func (b *scriptBuilder) WhenLineIs(text string, callbacks ...Callback) ScriptBuilder {
	b.declare("WhenLineIs")
	b.items = append(b.items, ExpectUpcomingLine{Text: text, Callback: chain(callbacks)})
	return b
}

func (b *scriptBuilder) NextLineMatches(pattern string, callbacks ...Callback) ScriptBuilder {
	b.declare("NextLineMatches")
	g, err := glob.Compile(pattern)
	if err != nil {
		b.fail("NextLineMatches", fmt.Errorf("invalid pattern %q: %w", pattern, err))
		return b
	}
	b.items = append(b.items, ExpectLine{Text: pattern, Pattern: g, Callback: chain(callbacks)})
	return b
}

func (b *scriptBuilder) WhenLineMatches(pattern string, callbacks ...Callback) ScriptBuilder {
	b.declare("WhenLineMatches")
	g, err := glob.Compile(pattern)
	if err != nil {
		b.fail("WhenLineMatches", fmt.Errorf("invalid pattern %q: %w", pattern, err))
		return b
	}
	b.items = append(b.items, ExpectUpcomingLine{Text: pattern, Pattern: g, Callback: chain(callbacks)})
	return b
}

func (b *scriptBuilder) Effect(action func(ctx context.Context) error) ScriptBuilder {
	b.declare("Effect")
	if action == nil {
		b.fail("Effect", fmt.Errorf("nil action"))
		return b
	}
	b.items = append(b.items, Effect{Action: action})
	return b
}

func (b *scriptBuilder) SendInput(text string) ScriptBuilder {
	b.declare("SendInput")
	b.items = append(b.items, Input{Text: text})
	return b
}

func (b *scriptBuilder) Interrupt() ScriptBuilder {
	b.declare("Interrupt")
	b.items = append(b.items, Interrupt{})
	return b
}

func (b *scriptBuilder) Kill() Executable {
	b.declare("Kill")
	b.items = append(b.items, Kill{})
	return b
}

func (b *scriptBuilder) Done(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return &UsageError{Method: "Done", Reason: "script already started"}
	}
	if b.err != nil {
		return b.err
	}
	if len(b.items) == 0 {
		return &UsageError{Method: "Done", Reason: "script is empty"}
	}

	noise := DefaultNoise
	if b.noise != nil {
		noise = b.noise
	}
	exitCodes := defaultExitCodes
	if b.exitCodes != nil {
		exitCodes = b.exitCodes
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	log := b.log.With("command", strings.Join(b.cmd.Argv(), " "))
	proc, err := b.provider.StartCommand(ctx, b.cmd)
	if err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	log.Debug("process started", "items", len(b.items))

	s, err := newSession(proc, b.items, noise, exitCodes, b.grace, log)
	if err != nil {
		_ = proc.Kill()
		return err
	}
	defer func() { b.transcript = s.engine.transcript }()
	return s.run(ctx)
}

func (b *scriptBuilder) Run(t *testing.T) {
	t.Helper()

	if err := b.Done(t.Context()); err != nil {
		t.Fatalf("script failed: %v\ntranscript:\n%s", err, formatTranscript(b.transcript))
	}
	if b.snapshot {
		snaps.MatchSnapshot(t, formatTranscript(b.transcript))
	}
}

func (b *scriptBuilder) Transcript() []Line {
	return append([]Line(nil), b.transcript...)
}

func chain(callbacks []Callback) Callback {
	var cbs []Callback
	for _, cb := range callbacks {
		if cb != nil {
			cbs = append(cbs, cb)
		}
	}
	switch len(cbs) {
	case 0:
		return nil
	case 1:
		return cbs[0]
	}
	return func(ctx context.Context, m Match) error {
		for _, cb := range cbs {
			if err := cb(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}
}

func formatTranscript(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "%s: %s\n", l.Stream, l.Content)
	}
	return sb.String()
}
