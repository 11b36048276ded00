// Package tty runs commands on a pseudo-terminal, for programs that only
// behave interactively when attached to a tty.
//
// A terminal has a single output stream: everything the program writes
// arrives on Stdout and Stderr is closed right away. The terminal echoes
// input back, so scripts usually match echoed input with WhenLineIs.
package tty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"go.alt-gnome.ru/capyscript"
	"go.alt-gnome.ru/capyscript/providers/local"
)

type ttyProvider struct {
	size *pty.Winsize
}

type TtyOption func(*ttyProvider)

// WithSize sets the terminal dimensions.
func WithSize(rows, cols uint16) TtyOption {
	return func(p *ttyProvider) {
		p.size = &pty.Winsize{Rows: rows, Cols: cols}
	}
}

func Provider(opts ...TtyOption) *ttyProvider {
	p := &ttyProvider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type session struct {
	cmd *exec.Cmd
	tty *os.File

	output chan string
	closed chan string

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (p *ttyProvider) StartCommand(_ context.Context, cmd capyscript.Command) (capyscript.InteractiveSession, error) {
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	tty, err := pty.StartWithSize(c, p.size)
	if err != nil {
		return nil, fmt.Errorf("failed to start interactive command: %w", err)
	}

	sess := &session{
		cmd:    c,
		tty:    tty,
		output: make(chan string),
		closed: make(chan string),
	}
	close(sess.closed)

	// Reading the pty fails with EIO once the child exits, which ends the
	// stream like EOF would.
	go local.ReadPipe(tty, sess.output)

	return sess, nil
}

func (s *session) Write(input string) error {
	_, err := s.tty.WriteString(input)
	return err
}

func (s *session) Stdout() <-chan string {
	return s.output
}

func (s *session) Stderr() <-chan string {
	return s.closed
}

func (s *session) Wait() (int, error) {
	s.waitOnce.Do(func() {
		s.exitCode, s.waitErr = local.ExitStatus(s.cmd.Wait())
		s.tty.Close()
	})
	return s.exitCode, s.waitErr
}

func (s *session) Interrupt() error {
	return local.Signal(s.cmd.Process, syscall.SIGINT)
}

func (s *session) Kill() error {
	return local.Signal(s.cmd.Process, syscall.SIGTERM)
}

func (s *session) ForceKill() error {
	return local.Signal(s.cmd.Process, syscall.SIGKILL)
}
