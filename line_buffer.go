package capyscript

import "sync"

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Line is one line of process output, without its terminator.
type Line struct {
	Stream  Stream
	Content string
}

// LineBuffer is a FIFO of received lines shared between the output reader
// and the engine. Lines of both streams are kept in arrival order.
type LineBuffer struct {
	mu    sync.Mutex
	lines []Line
}

func (b *LineBuffer) Push(lines ...Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, lines...)
}

func (b *LineBuffer) Peek() (Line, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return Line{}, false
	}
	return b.lines[0], true
}

func (b *LineBuffer) Pop() (Line, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return Line{}, false
	}
	l := b.lines[0]
	b.lines[0] = Line{}
	b.lines = b.lines[1:]
	return l, true
}

func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

func (b *LineBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Snapshot returns a copy of the pending lines.
func (b *LineBuffer) Snapshot() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Line(nil), b.lines...)
}
