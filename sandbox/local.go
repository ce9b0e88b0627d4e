package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables that are excluded from spawned processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// denialMarkers are stderr fragments that indicate the isolation layer,
// rather than the command, rejected an operation.
var denialMarkers = []string{
	"operation not permitted",
	"read-only file system",
	"seccomp",
	"landlock",
	"sandbox-exec",
}

// exitCodeSandboxDenied is the conventional exit code the sandbox wrapper
// reports when the kernel policy blocks the child.
const exitCodeSandboxDenied = 126

// LocalExecutor spawns commands on the local machine. Each spawned process
// gets its own process group so cancellation can kill the whole tree.
type LocalExecutor struct {
	platform Platform
	log      *zap.Logger
}

// NewLocalExecutor creates a LocalExecutor for the current platform.
func NewLocalExecutor(log *zap.Logger) *LocalExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalExecutor{
		platform: SelectPlatform(),
		log:      log,
	}
}

// Platform returns the isolation mechanism the executor selected.
func (e *LocalExecutor) Platform() Platform {
	return e.platform
}

// Run executes cmd under the given policy and captures its output. A
// context cancellation or timeout kills the spawned process group.
func (e *LocalExecutor) Run(ctx context.Context, cmd Command, policy Policy) (*Result, error) {
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	proc.Dir = cmd.Cwd
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		if proc.Process != nil {
			return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	env := filterEnvironment()
	for k, v := range cmd.Env {
		env = append(env, k+"="+v)
	}
	proc.Env = env

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	e.log.Debug("spawning command",
		zap.Strings("argv", cmd.Argv),
		zap.String("cwd", cmd.Cwd),
		zap.String("policy", string(policy)))

	start := time.Now()
	err := proc.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if proc.Process != nil {
				_ = syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
			}
			return result, nil
		}
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("spawn failed: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	result.SandboxDenied = detectDenial(result, policy)
	if result.SandboxDenied {
		e.log.Debug("sandbox denied command",
			zap.Strings("argv", cmd.Argv),
			zap.Int("exit_code", result.ExitCode))
	}

	return result, nil
}

// detectDenial classifies a failed run as a sandbox denial. A plain
// non-zero exit is never treated as one; the signal requires the
// conventional denial exit code or a recognizable kernel-policy message
// while a restrictive policy was in force.
func detectDenial(r *Result, policy Policy) bool {
	if !policy.Sandboxed() || r.ExitCode == 0 {
		return false
	}
	if r.ExitCode == exitCodeSandboxDenied {
		return true
	}
	lower := strings.ToLower(r.Stderr)
	for _, marker := range denialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
