package capyscript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// recorder is a processControl that records what the engine did.
type recorder struct {
	mu          sync.Mutex
	writes      []string
	interrupted int
	killed      int
}

func (r *recorder) Write(input string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, input)
	return nil
}

func (r *recorder) Interrupt() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted++
	return nil
}

func (r *recorder) Kill() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killed++
	return nil
}

func (r *recorder) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

const exitCodeSIGKILL = 128 + 9

// program simulates a child process. It returns the exit status.
type program func(p *fakeProcess) int

type fakeProvider struct {
	mu     sync.Mutex
	prog   program
	starts []Command
}

func (f *fakeProvider) StartCommand(_ context.Context, cmd Command) (InteractiveSession, error) {
	f.mu.Lock()
	f.starts = append(f.starts, cmd)
	f.mu.Unlock()

	p := &fakeProcess{
		stdout:      make(chan string),
		stderr:      make(chan string),
		input:       make(chan string, 16),
		killed:      make(chan struct{}),
		forced:      make(chan struct{}),
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
	}
	go func() {
		code := f.prog(p)
		select {
		case <-p.forced:
			code = exitCodeSIGKILL
		case <-p.killed:
			code = ExitCodeSIGTERM
		default:
		}
		p.code = code
		close(p.stdout)
		close(p.stderr)
		close(p.done)
	}()
	return p, nil
}

func (f *fakeProvider) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type fakeProcess struct {
	stdout chan string
	stderr chan string
	input  chan string

	killed        chan struct{}
	killOnce      sync.Once
	forced        chan struct{}
	forceOnce     sync.Once
	interrupted   chan struct{}
	interruptOnce sync.Once

	done chan struct{}
	code int
}

func (p *fakeProcess) Write(input string) error {
	select {
	case <-p.done:
		return errors.New("process exited")
	default:
	}
	select {
	case p.input <- input:
		return nil
	case <-p.done:
		return errors.New("process exited")
	}
}

func (p *fakeProcess) Stdout() <-chan string { return p.stdout }
func (p *fakeProcess) Stderr() <-chan string { return p.stderr }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

func (p *fakeProcess) Interrupt() error {
	p.interruptOnce.Do(func() { close(p.interrupted) })
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) ForceKill() error {
	p.forceOnce.Do(func() { close(p.forced) })
	return nil
}

func (p *fakeProcess) out(chunk string) bool {
	select {
	case p.stdout <- chunk:
		return true
	case <-p.killed:
		return false
	}
}

func (p *fakeProcess) err(chunk string) bool {
	select {
	case p.stderr <- chunk:
		return true
	case <-p.killed:
		return false
	}
}

func (p *fakeProcess) readLine() (string, bool) {
	select {
	case s := <-p.input:
		return strings.TrimSuffix(s, "\n"), true
	case <-p.killed:
		return "", false
	}
}

func (p *fakeProcess) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-p.killed:
		return false
	}
}

// hang blocks until the process is killed.
func (p *fakeProcess) hang() int {
	<-p.killed
	return ExitCodeSIGTERM
}

// stubborn ignores SIGTERM and blocks until the process is force-killed.
func (p *fakeProcess) stubborn() int {
	<-p.forced
	return exitCodeSIGKILL
}
