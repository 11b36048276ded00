package capyscript

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// processControl is the part of a session the engine drives.
type processControl interface {
	Write(input string) error
	Interrupt() error
	Kill() error
}

// engine reconciles the script with the received lines. Only the engine
// pops either queue or writes to the process.
type engine struct {
	script []Item
	next   int // script index of script[0]
	lines  *LineBuffer
	proc   processControl
	log    *slog.Logger

	running    atomic.Bool
	killed     bool
	transcript []Line
}

func newEngine(script []Item, lines *LineBuffer, proc processControl, log *slog.Logger) *engine {
	return &engine{
		script: append([]Item(nil), script...),
		lines:  lines,
		proc:   proc,
		log:    log,
	}
}

func (e *engine) head() (Item, bool) {
	if len(e.script) == 0 {
		return nil, false
	}
	return e.script[0], true
}

func (e *engine) pop() {
	e.script[0] = nil
	e.script = e.script[1:]
	e.next++
}

func (e *engine) pending() int {
	return len(e.script)
}

// pump advances the script as far as the buffered lines allow. A call made
// while another pump is in progress returns immediately; the active pump
// picks up whatever changed.
func (e *engine) pump(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	defer e.running.Store(false)

	for !e.killed {
		if err := e.drainEffects(ctx); err != nil {
			return err
		}
		if err := e.matchLines(ctx); err != nil {
			return err
		}
		it, ok := e.head()
		if !ok || isLineItem(it) {
			return nil
		}
	}
	return nil
}

// drainEffects runs side-effect items at the head of the script without
// looking at the line buffer.
func (e *engine) drainEffects(ctx context.Context) error {
	for !e.killed {
		it, ok := e.head()
		if !ok || isLineItem(it) {
			return nil
		}
		idx := e.next
		e.pop()
		e.log.Debug("running item", "index", idx, "item", describe(it))

		switch it := it.(type) {
		case Kill:
			return e.kill()
		case Input:
			if err := e.sendInput(it.Text); err != nil {
				return fmt.Errorf("capyscript: item %d: %w", idx, err)
			}
		case Interrupt:
			if err := e.proc.Interrupt(); err != nil {
				return fmt.Errorf("capyscript: item %d: failed to interrupt process: %w", idx, err)
			}
		case Effect:
			if err := it.Action(ctx); err != nil {
				return fmt.Errorf("capyscript: item %d: effect: %w", idx, err)
			}
		}
	}
	return nil
}

// matchLines consumes buffered lines against line items at the head of
// the script.
func (e *engine) matchLines(ctx context.Context) error {
	for !e.killed {
		it, ok := e.head()
		if !ok || !isLineItem(it) {
			return nil
		}
		line, ok := e.lines.Pop()
		if !ok {
			return nil
		}
		e.transcript = append(e.transcript, line)
		idx := e.next

		var callback Callback
		switch it := it.(type) {
		case ExpectUpcomingLine:
			if !it.matches(line.Content) {
				e.log.Debug("discarding line", "index", idx, "stream", line.Stream, "line", line.Content)
				continue
			}
			callback = it.Callback
		case ExpectLine:
			if !it.matches(line.Content) {
				e.pop()
				return &MismatchError{Index: idx, Expected: it.Text, Got: line}
			}
			callback = it.Callback
		}
		e.pop()
		e.log.Debug("matched line", "index", idx, "stream", line.Stream, "line", line.Content)

		if callback != nil {
			if err := callback(ctx, Match{Line: line, input: e.sendInput}); err != nil {
				return fmt.Errorf("capyscript: item %d: callback: %w", idx, err)
			}
		}
	}
	return nil
}

func (e *engine) sendInput(text string) error {
	if e.killed {
		return ErrKilled
	}
	if err := e.proc.Write(text + "\n"); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// kill drops every pending item and line and terminates the process.
func (e *engine) kill() error {
	e.killed = true
	e.script = nil
	e.lines.Clear()
	e.log.Debug("killing process")
	if err := e.proc.Kill(); err != nil {
		return fmt.Errorf("capyscript: failed to kill process: %w", err)
	}
	return nil
}
