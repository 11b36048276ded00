package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.alt-gnome.ru/capyscript"
)

type localProvider struct{}

func Provider() *localProvider {
	return &localProvider{}
}

type session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	stdoutC chan string
	stderrC chan string

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (p *localProvider) StartCommand(_ context.Context, cmd capyscript.Command) (capyscript.InteractiveSession, error) {
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, err
	}

	sess := &session{
		cmd:     c,
		stdin:   stdin,
		stdoutC: make(chan string),
		stderrC: make(chan string),
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Name, err)
	}

	go ReadPipe(stdout, sess.stdoutC)
	go ReadPipe(stderr, sess.stderrC)

	return sess, nil
}

// ReadPipe forwards chunks read from r to ch and closes ch at EOF.
func ReadPipe(r io.Reader, ch chan<- string) {
	defer close(ch)
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ch <- string(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *session) Write(input string) error {
	_, err := io.WriteString(s.stdin, input)
	return err
}

func (s *session) Stdout() <-chan string {
	return s.stdoutC
}

func (s *session) Stderr() <-chan string {
	return s.stderrC
}

// Wait should be called after both output channels are drained:
// exec.Cmd.Wait closes the pipes, so unread output is lost.
func (s *session) Wait() (int, error) {
	s.waitOnce.Do(func() {
		s.exitCode, s.waitErr = ExitStatus(s.cmd.Wait())
	})
	return s.exitCode, s.waitErr
}

func (s *session) Interrupt() error {
	return Signal(s.cmd.Process, syscall.SIGINT)
}

func (s *session) Kill() error {
	return Signal(s.cmd.Process, syscall.SIGTERM)
}

func (s *session) ForceKill() error {
	return Signal(s.cmd.Process, syscall.SIGKILL)
}

// Signal delivers sig, ignoring processes that have already exited.
func Signal(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return os.ErrInvalid
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// ExitStatus converts the result of exec.Cmd.Wait into a shell-style exit
// status: a process killed by a signal reports 128 plus the signal number.
func ExitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
