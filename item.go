package capyscript

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
)

// Item is a single entry of a script. The set of item kinds is closed.
type Item interface {
	isItem()
}

// Callback runs after a line expectation has matched. The run does not
// continue until it returns; a non-nil error aborts the run.
type Callback func(ctx context.Context, m Match) error

// Match is handed to a Callback.
type Match struct {
	Line Line

	input func(text string) error
}

// SendInput writes text and a line terminator to the process right away.
func (m Match) SendInput(text string) error {
	if m.input == nil {
		return fmt.Errorf("no process attached")
	}
	return m.input(text)
}

// Kill terminates the process and drops everything still pending.
type Kill struct{}

// Input writes Text followed by a newline to the process.
type Input struct {
	Text string
}

// Effect runs Action and waits for it to return.
type Effect struct {
	Action func(ctx context.Context) error
}

// Interrupt sends SIGINT to the process.
type Interrupt struct{}

// ExpectLine requires the very next received line to match.
type ExpectLine struct {
	Text     string
	Pattern  glob.Glob // matched instead of Text when set
	Callback Callback
}

// ExpectUpcomingLine discards received lines until one matches.
type ExpectUpcomingLine struct {
	Text     string
	Pattern  glob.Glob
	Callback Callback
}

func (Kill) isItem()               {}
func (Input) isItem()              {}
func (Effect) isItem()             {}
func (Interrupt) isItem()          {}
func (ExpectLine) isItem()         {}
func (ExpectUpcomingLine) isItem() {}

func (i ExpectLine) matches(content string) bool {
	return lineMatches(i.Text, i.Pattern, content)
}

func (i ExpectUpcomingLine) matches(content string) bool {
	return lineMatches(i.Text, i.Pattern, content)
}

func lineMatches(text string, pattern glob.Glob, content string) bool {
	if pattern != nil {
		return pattern.Match(content)
	}
	return content == text
}

// isLineItem reports whether it waits on received output.
func isLineItem(it Item) bool {
	switch it.(type) {
	case ExpectLine, ExpectUpcomingLine:
		return true
	}
	return false
}

func describe(it Item) string {
	switch it := it.(type) {
	case Kill:
		return "kill"
	case Input:
		return fmt.Sprintf("input %q", it.Text)
	case Effect:
		return "effect"
	case Interrupt:
		return "interrupt"
	case ExpectLine:
		return fmt.Sprintf("next line %q", it.Text)
	case ExpectUpcomingLine:
		return fmt.Sprintf("upcoming line %q", it.Text)
	default:
		return fmt.Sprintf("%T", it)
	}
}
