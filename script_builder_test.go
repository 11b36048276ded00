package capyscript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoneOnEmptyScript(t *testing.T) {
	r, p := newFakeRunner(func(p *fakeProcess) int { return 0 })

	err := r.Command("x").WithDir("/tmp").Done(t.Context())

	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, "Done", usage.Method)
	assert.Zero(t, p.Starts())
}

func TestDoneTwice(t *testing.T) {
	r, p := newFakeRunner(func(p *fakeProcess) int {
		p.out("a\n")
		return 0
	})
	b := r.Command("x").NextLineIs("a")
	require.NoError(t, b.Done(t.Context()))

	var usage *UsageError
	require.ErrorAs(t, b.Done(t.Context()), &usage)
	assert.Equal(t, 1, p.Starts())
}

func TestDeclareAfterStart(t *testing.T) {
	r, _ := newFakeRunner(func(p *fakeProcess) int {
		p.out("a\n")
		return 0
	})
	b := r.Command("x").NextLineIs("a")
	require.NoError(t, b.Done(t.Context()))

	declarations := map[string]func(){
		"NextLineIs":      func() { b.NextLineIs("b") },
		"WhenLineIs":      func() { b.WhenLineIs("b") },
		"NextLineMatches": func() { b.NextLineMatches("b*") },
		"WhenLineMatches": func() { b.WhenLineMatches("b*") },
		"SendInput":       func() { b.SendInput("b") },
		"Effect":          func() { b.Effect(func(context.Context) error { return nil }) },
		"Interrupt":       func() { b.Interrupt() },
		"Kill":            func() { b.Kill() },
		"WithTimeout":     func() { b.WithTimeout(0) },
		"WithGracePeriod": func() { b.WithGracePeriod(0) },
	}
	for method, declare := range declarations {
		t.Run(method, func(t *testing.T) {
			defer func() {
				rec := recover()
				usage, ok := rec.(*UsageError)
				require.True(t, ok, "expected a *UsageError panic, got %v", rec)
				assert.Equal(t, method, usage.Method)
			}()
			declare()
		})
	}
}

func TestDeclareFromCallbackAbortsRun(t *testing.T) {
	r, _ := newFakeRunner(func(p *fakeProcess) int {
		p.out("a\n")
		return p.hang()
	})

	var b ScriptBuilder
	b = r.Command("x").NextLineIs("a", func(context.Context, Match) error {
		b.SendInput("late")
		return nil
	})

	assert.PanicsWithError(t, `capyscript: SendInput: script already started`, func() {
		_ = b.Done(t.Context())
	})
}

func TestInvalidPattern(t *testing.T) {
	r, p := newFakeRunner(func(p *fakeProcess) int { return 0 })

	err := r.Command("x").
		NextLineMatches("[oops").
		NextLineIs("fine").
		Done(t.Context())

	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, "NextLineMatches", usage.Method)
	assert.Zero(t, p.Starts())
}

func TestNegativeGracePeriod(t *testing.T) {
	r, p := newFakeRunner(func(p *fakeProcess) int { return 0 })

	err := r.Command("x").
		WithGracePeriod(-time.Second).
		NextLineIs("a").
		Done(t.Context())

	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, "WithGracePeriod", usage.Method)
	assert.Zero(t, p.Starts())
}

func TestCommandConfiguration(t *testing.T) {
	r, p := newFakeRunner(func(p *fakeProcess) int {
		p.out("ok\n")
		return 0
	})

	err := r.Command("tool", "-v", "run").
		WithDir("/work").
		WithEnv("A=1").
		WithEnv("B=2").
		NextLineIs("ok").
		Done(t.Context())

	require.NoError(t, err)
	require.Len(t, p.starts, 1)
	assert.Equal(t, Command{
		Name: "tool",
		Args: []string{"-v", "run"},
		Dir:  "/work",
		Env:  []string{"A=1", "B=2"},
	}, p.starts[0])
}

func TestChainedCallbacks(t *testing.T) {
	r, _ := newFakeRunner(func(p *fakeProcess) int {
		p.out("a\n")
		return 0
	})

	var order []int
	step := func(n int) Callback {
		return func(context.Context, Match) error {
			order = append(order, n)
			return nil
		}
	}
	require.NoError(t, r.Command("x").NextLineIs("a", step(1), nil, step(2)).Done(t.Context()))
	assert.Equal(t, []int{1, 2}, order)
}
