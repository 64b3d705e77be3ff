// Package bringup holds the AT test sequences used to bring up a freshly
// flashed ESP8266 module and the runner that executes them in order.
package bringup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrTestFailed is wrapped by every TestError.
var ErrTestFailed = errors.New("test failed")

// TestError names the first test of a run that did not pass.
type TestError struct {
	Name string
}

func (e *TestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, ErrTestFailed)
}

func (e *TestError) Unwrap() error {
	return ErrTestFailed
}

// Commander sends a single AT command and reports whether it succeeded.
// *esp8266.Driver implements it.
type Commander interface {
	SendCommand(cmd string) bool
}

// Env is handed to every test.
type Env struct {
	Commander Commander
	Logger    *slog.Logger
	Clock     clockwork.Clock
}

// Test is a named step of a bring-up run.
type Test struct {
	Name string
	Run  func(ctx context.Context, env Env) bool
}

// All sends cmds in order and stops at the first one that fails.
func All(c Commander, cmds ...string) bool {
	for _, cmd := range cmds {
		if !c.SendCommand(cmd) {
			return false
		}
	}
	return true
}

// Runner executes tests one after the other.
type Runner struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Run executes tests in order against c. It stops at the first failing
// test and returns a *TestError for it, or ctx.Err() when ctx is done
// before the next test starts.
func (r *Runner) Run(ctx context.Context, c Commander, tests ...Test) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	env := Env{Commander: c, Logger: logger, Clock: clock}
	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := clock.Now()
		logger.Info("Running test", "test", test.Name)
		if !test.Run(ctx, env) {
			logger.Error("Test failed", "test", test.Name, "elapsed", clock.Since(start))
			return &TestError{Name: test.Name}
		}
		logger.Info("Test passed", "test", test.Name, "elapsed", clock.Since(start))
	}
	return nil
}

// sleep waits for d on clock or until ctx is done.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return true
	}
}
