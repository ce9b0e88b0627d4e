package sandbox

import (
	"context"
	"time"
)

// Command describes one command execution request.
type Command struct {
	// Argv is the program and its arguments. Never interpreted by a shell
	// unless the caller includes one explicitly.
	Argv []string
	// Cwd is the working directory for the spawned process.
	Cwd string
	// Env holds additional environment variables layered over the filtered
	// host environment.
	Env map[string]string
	// Timeout bounds the execution; zero means no timeout.
	Timeout time.Duration
}

// Result is the outcome of one command execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// SandboxDenied is set when the isolation layer, not the command itself,
	// blocked the operation. It is the signal that permits the single
	// automatic no-sandbox retry.
	SandboxDenied bool
	TimedOut      bool
	Duration      time.Duration
}

// Output returns combined stdout and stderr.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs a single command under the given policy. Implementations
// are pluggable per platform; the engine only depends on this contract.
type Executor interface {
	Run(ctx context.Context, cmd Command, policy Policy) (*Result, error)
}
