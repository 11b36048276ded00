// Package scriptfile loads scripts declared in TOML files.
package scriptfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"go.alt-gnome.ru/capyscript"
)

// Step kinds.
const (
	KindNextLine  = "next_line"
	KindWhenLine  = "when_line"
	KindNextMatch = "next_match"
	KindWhenMatch = "when_match"
	KindInput     = "input"
	KindSleep     = "sleep"
	KindInterrupt = "interrupt"
	KindKill      = "kill"
)

type File struct {
	Command     string   `toml:"command"`
	Args        []string `toml:"args"`
	Dir         string   `toml:"dir"`
	Env         []string `toml:"env"`
	Timeout     Duration `toml:"timeout"`
	GracePeriod Duration `toml:"grace_period"`
	Provider    string   `toml:"provider"` // "local" or "tty"
	ExitCode    []int    `toml:"exit_code"`
	Noise       []string `toml:"noise"`
	Steps       []Step   `toml:"step"`
}

type Step struct {
	Kind     string   `toml:"kind"`
	Text     string   `toml:"text"`
	Duration Duration `toml:"duration"`
	Reply    string   `toml:"reply"` // sent when a line step matches
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func Parse(data string) (*File, error) {
	var f File
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	if f.Command == "" {
		return fmt.Errorf("command is required")
	}
	switch f.Provider {
	case "", "local", "tty":
	default:
		return fmt.Errorf("unknown provider %q", f.Provider)
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("script has no steps")
	}
	for i, s := range f.Steps {
		switch s.Kind {
		case KindNextLine, KindWhenLine, KindNextMatch, KindWhenMatch, KindInput:
		case KindSleep:
			if s.Duration.Duration <= 0 {
				return fmt.Errorf("step %d: sleep needs a positive duration", i)
			}
		case KindInterrupt:
		case KindKill:
			if i != len(f.Steps)-1 {
				return fmt.Errorf("step %d: kill must be the last step", i)
			}
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, s.Kind)
		}
		if s.Reply != "" && !s.isLine() {
			return fmt.Errorf("step %d: reply is only allowed on line steps", i)
		}
	}
	return nil
}

func (s Step) isLine() bool {
	switch s.Kind {
	case KindNextLine, KindWhenLine, KindNextMatch, KindWhenMatch:
		return true
	}
	return false
}

// Build declares the file's script on a builder obtained from r.
func (f *File) Build(r capyscript.Runner) capyscript.Executable {
	b := r.Command(f.Command, f.Args...)
	if f.Dir != "" {
		b.WithDir(f.Dir)
	}
	if len(f.Env) > 0 {
		b.WithEnv(f.Env...)
	}
	if f.Timeout.Duration > 0 {
		b.WithTimeout(f.Timeout.Duration)
	}
	if f.GracePeriod.Duration > 0 {
		b.WithGracePeriod(f.GracePeriod.Duration)
	}
	if len(f.ExitCode) > 0 {
		b.ExpectExitCode(f.ExitCode...)
	}
	if f.Noise != nil {
		b.WithNoise(f.Noise...)
	}

	for _, s := range f.Steps {
		var cb capyscript.Callback
		if s.Reply != "" {
			reply := s.Reply
			cb = func(_ context.Context, m capyscript.Match) error {
				return m.SendInput(reply)
			}
		}

		switch s.Kind {
		case KindNextLine:
			b.NextLineIs(s.Text, cb)
		case KindWhenLine:
			b.WhenLineIs(s.Text, cb)
		case KindNextMatch:
			b.NextLineMatches(s.Text, cb)
		case KindWhenMatch:
			b.WhenLineMatches(s.Text, cb)
		case KindInput:
			b.SendInput(s.Text)
		case KindSleep:
			b.Effect(sleep(s.Duration.Duration))
		case KindInterrupt:
			b.Interrupt()
		case KindKill:
			return b.Kill()
		}
	}
	return b
}

func sleep(d time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
