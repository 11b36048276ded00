package capyscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// ExitCodeSIGTERM is the status reported for a process ended by SIGTERM.
const ExitCodeSIGTERM = 128 + 15

// DefaultGracePeriod is how long an aborted process gets to exit after
// SIGTERM before it is killed outright.
const DefaultGracePeriod = 2 * time.Second

var defaultExitCodes = []int{0, ExitCodeSIGTERM}

// session wires one running process to an engine.
type session struct {
	proc      InteractiveSession
	demux     *Demux
	engine    *engine
	exitCodes []int
	grace     time.Duration
	log       *slog.Logger

	notify     chan struct{}
	outputDone chan struct{}
}

func newSession(proc InteractiveSession, items []Item, noise []string, exitCodes []int, grace time.Duration, log *slog.Logger) (*session, error) {
	lines := &LineBuffer{}
	demux, err := NewDemux(lines, noise)
	if err != nil {
		return nil, err
	}
	return &session{
		proc:       proc,
		demux:      demux,
		engine:     newEngine(items, lines, proc, log),
		exitCodes:  exitCodes,
		grace:      grace,
		log:        log,
		notify:     make(chan struct{}, 1),
		outputDone: make(chan struct{}),
	}, nil
}

func (s *session) run(ctx context.Context) error {
	go s.readOutput()

	defer func() {
		if r := recover(); r != nil {
			s.abort()
			panic(r)
		}
	}()

	if err := s.loop(ctx); err != nil {
		s.abort()
		return err
	}

	exitCode, err := s.proc.Wait()
	if err != nil {
		return fmt.Errorf("error waiting for process: %w", err)
	}
	s.log.Debug("process exited", "code", exitCode)
	if !slices.Contains(s.exitCodes, exitCode) {
		return &ExitError{Code: exitCode}
	}
	return nil
}

func (s *session) loop(ctx context.Context) error {
	if err := s.engine.pump(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-s.notify:
			if err := s.engine.pump(ctx); err != nil {
				return err
			}
		case <-s.outputDone:
			if err := s.engine.pump(ctx); err != nil {
				return err
			}
			if it, ok := s.engine.head(); ok {
				return &UnmetError{Index: s.engine.next, Item: describe(it), Pending: s.engine.pending()}
			}
			return nil
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			if it, ok := s.engine.head(); ok {
				return fmt.Errorf("waiting on item %d (%s): %w", s.engine.next, describe(it), err)
			}
			return fmt.Errorf("waiting for process exit: %w", err)
		}
	}
}

// readOutput feeds both output streams through the demux until both are
// closed. It is the only reader of the session channels.
func (s *session) readOutput() {
	defer close(s.outputDone)

	stdout, stderr := s.proc.Stdout(), s.proc.Stderr()
	for stdout != nil || stderr != nil {
		var added int
		select {
		case chunk, ok := <-stdout:
			if !ok {
				added = s.demux.Flush(Stdout)
				stdout = nil
				break
			}
			added = s.demux.Write(Stdout, chunk)
		case chunk, ok := <-stderr:
			if !ok {
				added = s.demux.Flush(Stderr)
				stderr = nil
				break
			}
			added = s.demux.Write(Stderr, chunk)
		}
		if added > 0 {
			s.wake()
		}
	}
}

func (s *session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// abort terminates the process after a failed run and reaps it. A process
// that is still around a grace period after SIGTERM gets SIGKILL, and one
// that survives even that is abandoned.
func (s *session) abort() {
	if err := s.proc.Kill(); err != nil {
		s.log.Debug("failed to terminate process", "error", err)
	}
	if s.await(s.outputDone) && s.reap() {
		return
	}

	s.log.Debug("process ignored SIGTERM, killing it", "grace", s.grace)
	if err := s.proc.ForceKill(); err != nil {
		s.log.Debug("failed to kill process", "error", err)
	}
	if !s.reap() {
		s.log.Warn("process did not exit after SIGKILL")
	}
	if !s.await(s.outputDone) {
		s.log.Warn("output streams still open after SIGKILL, abandoning them")
	}
}

// reap waits for the process to exit for at most the grace period.
func (s *session) reap() bool {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if _, err := s.proc.Wait(); err != nil {
			s.log.Debug("error waiting for process", "error", err)
		}
	}()
	return s.await(exited)
}

func (s *session) await(c <-chan struct{}) bool {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-c:
		return true
	case <-timer.C:
		return false
	}
}
