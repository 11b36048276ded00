package capyscript

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultNoise lists output lines that are never matched against a script.
// Deno prints the type-check banner on stderr before the program starts.
var DefaultNoise = []string{"Check file://*"}

// Demux splits raw output chunks into lines and appends them to a
// LineBuffer. A line split across chunks is joined before it is emitted.
type Demux struct {
	buf     *LineBuffer
	noise   []glob.Glob
	partial [2]strings.Builder
}

func NewDemux(buf *LineBuffer, noise []string) (*Demux, error) {
	d := &Demux{buf: buf}
	for _, pattern := range noise {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid noise pattern %q: %w", pattern, err)
		}
		d.noise = append(d.noise, g)
	}
	return d, nil
}

// Write consumes a chunk from stream and returns the number of lines added
// to the buffer.
func (d *Demux) Write(stream Stream, chunk string) int {
	p := &d.partial[stream]
	var lines []Line
	for {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			p.WriteString(chunk)
			break
		}
		p.WriteString(chunk[:i])
		chunk = chunk[i+1:]
		if l, ok := d.line(stream, p.String()); ok {
			lines = append(lines, l)
		}
		p.Reset()
	}
	if len(lines) > 0 {
		d.buf.Push(lines...)
	}
	return len(lines)
}

// Flush emits an unterminated trailing line of stream, if any.
func (d *Demux) Flush(stream Stream) int {
	p := &d.partial[stream]
	content := p.String()
	p.Reset()
	l, ok := d.line(stream, content)
	if !ok {
		return 0
	}
	d.buf.Push(l)
	return 1
}

func (d *Demux) line(stream Stream, content string) (Line, bool) {
	content = strings.TrimSuffix(content, "\r")
	if strings.TrimSpace(content) == "" {
		return Line{}, false
	}
	for _, g := range d.noise {
		if g.Match(content) {
			return Line{}, false
		}
	}
	return Line{Stream: stream, Content: content}, true
}
