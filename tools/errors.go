package tools

import "fmt"

// DecodeError reports malformed tool arguments. It carries a corrective
// example so the failure can be fed back into the conversation in a form
// the model can self-correct from.
type DecodeError struct {
	Tool    string
	Reason  string
	Example string
}

func (e *DecodeError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("invalid arguments for %s: %s. Expected shape: %s", e.Tool, e.Reason, e.Example)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// DenialError reports an action forbidden by the approval or sandbox
// policy. It resolves a call without any process being spawned.
type DenialError struct {
	Reason string
}

func (e *DenialError) Error() string {
	return "denied: " + e.Reason
}

// SandboxDenialError reports that the isolation layer, not the command,
// blocked execution and the no-sandbox retry was not permitted or also
// failed.
type SandboxDenialError struct {
	Command string
	Output  string
}

func (e *SandboxDenialError) Error() string {
	return fmt.Sprintf("sandbox blocked command %q", e.Command)
}

// ExecutionError reports a tool that ran and failed on its own terms
// (nonzero exit, patch conflict, MCP error response). The turn continues;
// the model sees the captured output and may react.
type ExecutionError struct {
	Tool   string
	Detail string
	Output string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Tool, e.Detail)
}
