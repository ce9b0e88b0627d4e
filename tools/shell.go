package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// shellExample is the corrective argument shape included in decode errors
// so the model can fix its next attempt.
const shellExample = `{"command": ["bash", "-lc", "echo hello"]}`

// ShellRequest is the decoded argument set for the shell tool and for
// provider-native local shell calls.
type ShellRequest struct {
	// Command is the argv to spawn. A single-string command is rejected at
	// decode time; the model must send an array of strings.
	Command []string
	// Workdir overrides the turn's working directory when set.
	Workdir string
	// TimeoutMs overrides the default command timeout.
	TimeoutMs int
	// Justification is the model's stated reason, shown when approval is
	// requested.
	Justification string
}

// Timeout converts the request timeout, clamped to [def, max].
func (r *ShellRequest) Timeout(def, max time.Duration) time.Duration {
	t := time.Duration(r.TimeoutMs) * time.Millisecond
	if t <= 0 {
		t = def
	}
	if max > 0 && t > max {
		t = max
	}
	return t
}

// CommandLine renders the argv for display in events and approval prompts.
func (r *ShellRequest) CommandLine() string {
	return strings.Join(r.Command, " ")
}

// DecodeShellRequest decodes raw shell arguments, rejecting the common
// model mistake of sending the command as one string instead of an argv
// array. Decode failures never spawn a process.
func DecodeShellRequest(raw json.RawMessage) (*ShellRequest, error) {
	var probe struct {
		Command       json.RawMessage `json:"command"`
		Workdir       string          `json:"workdir"`
		TimeoutMs     int             `json:"timeout_ms"`
		Justification string          `json:"justification"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &DecodeError{
			Tool:    "shell",
			Reason:  fmt.Sprintf("arguments are not valid JSON: %v", err),
			Example: shellExample,
		}
	}
	if len(probe.Command) == 0 {
		return nil, &DecodeError{
			Tool:    "shell",
			Reason:  "missing required field \"command\"",
			Example: shellExample,
		}
	}

	var argv []string
	if err := json.Unmarshal(probe.Command, &argv); err != nil {
		var single string
		if json.Unmarshal(probe.Command, &single) == nil {
			return nil, &DecodeError{
				Tool:    "shell",
				Reason:  fmt.Sprintf("\"command\" must be an array of strings, got the string %q", single),
				Example: shellExample,
			}
		}
		return nil, &DecodeError{
			Tool:    "shell",
			Reason:  "\"command\" must be an array of strings",
			Example: shellExample,
		}
	}
	if len(argv) == 0 {
		return nil, &DecodeError{
			Tool:    "shell",
			Reason:  "\"command\" must not be empty",
			Example: shellExample,
		}
	}
	for i, a := range argv {
		if a == "" && i == 0 {
			return nil, &DecodeError{
				Tool:    "shell",
				Reason:  "command program must not be empty",
				Example: shellExample,
			}
		}
	}

	return &ShellRequest{
		Command:       argv,
		Workdir:       probe.Workdir,
		TimeoutMs:     probe.TimeoutMs,
		Justification: probe.Justification,
	}, nil
}
