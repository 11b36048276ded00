package capyscript

import (
	"log/slog"
	"strings"
	"testing"
)

type testSuite struct {
	t          *testing.T
	p          Provider
	opts       []RunnerOption
	beforeEach func(t *testing.T, r Runner)
}

type TestSuite interface {
	Run(name string, f func(t *testing.T, r Runner))
	BeforeEach(f func(t *testing.T, r Runner))
}

// NewTestSuite returns a suite whose runners log script progress to the
// running test. Options are applied after the test logger.
func NewTestSuite(t *testing.T, p Provider, opts ...RunnerOption) TestSuite {
	return &testSuite{t: t, p: p, opts: opts}
}

func (s *testSuite) runner(t *testing.T) Runner {
	s.t.Helper()

	if prep, ok := s.p.(PreparableProvider); ok {
		if err := prep.Prepare(); err != nil {
			t.Fatalf("failed to prepare provider: %v", err)
		}
		t.Cleanup(func() {
			if err := prep.Cleanup(); err != nil {
				t.Errorf("failed to cleanup provider: %v", err)
			}
		})
	}

	opts := append([]RunnerOption{WithLogger(TestLogger(t))}, s.opts...)
	return NewRunner(s.p, opts...)
}

func (s *testSuite) BeforeEach(f func(t *testing.T, r Runner)) {
	s.beforeEach = f
}

func (s *testSuite) Run(name string, f func(t *testing.T, r Runner)) {
	s.t.Helper()
	s.t.Run(name, func(t *testing.T) {
		r := s.runner(t)
		if s.beforeEach != nil {
			s.beforeEach(t, r)
		}
		f(t, r)
	})
}

// TestLogger returns a debug level logger writing to t.Log.
func TestLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
