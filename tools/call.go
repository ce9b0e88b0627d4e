// Package tools maps model-issued tool invocations onto concrete execution
// paths: shell commands, file patches, and MCP-delegated calls. It owns the
// per-call lifecycle from argument decoding through approval to execution.
package tools

import (
	"encoding/json"
	"strings"

	"github.com/martinemde/conductor/modelclient"
)

// Kind is the closed set of tool-call kinds. Dispatch over Kind is
// exhaustive; adding a kind means updating every switch that matches it.
type Kind string

const (
	// KindFunction is a registered function tool with JSON arguments.
	KindFunction Kind = "function"
	// KindCustom is a free-form tool whose payload is passed through
	// untouched (the apply_patch freeform grammar uses this).
	KindCustom Kind = "custom"
	// KindMcp delegates to a named external MCP server.
	KindMcp Kind = "mcp"
	// KindLocalShell is the provider-native shell tool; it shares the
	// shell execution path with the function-based shell tool.
	KindLocalShell Kind = "local_shell"
)

// mcpSeparator splits a fully qualified MCP tool name into server and tool.
const mcpSeparator = "__"

// Call is one parsed tool invocation from the model, pinned to a call id
// that is unique within its turn.
type Call struct {
	CallID string
	Kind   Kind
	// Name is the tool name as the model emitted it.
	Name string
	// Server and Tool are set only for KindMcp.
	Server string
	Tool   string
	// RawArguments is the undecoded argument payload. For KindCustom it is
	// the raw text body rather than JSON.
	RawArguments json.RawMessage
}

// FromFragment classifies a streamed tool-call fragment into a Call.
// MCP tools are recognised by the server__tool naming convention.
func FromFragment(f modelclient.ToolCallFragment) Call {
	c := Call{
		CallID:       f.CallID,
		Name:         f.Name,
		RawArguments: f.RawArguments,
	}
	switch {
	case f.LocalShell:
		c.Kind = KindLocalShell
	case f.Custom:
		c.Kind = KindCustom
	case strings.Contains(f.Name, mcpSeparator):
		c.Kind = KindMcp
		parts := strings.SplitN(f.Name, mcpSeparator, 2)
		c.Server = parts[0]
		c.Tool = parts[1]
	default:
		c.Kind = KindFunction
	}
	return c
}

// State is the authoritative position of a call in its lifecycle.
type State string

const (
	StateParsed          State = "parsed"
	StatePolicyChecked   State = "policy_checked"
	StateAutoApproved    State = "auto_approved"
	StatePendingApproval State = "pending_approval"
	StateDenied          State = "denied"
	StateExecuting       State = "executing"
	StateSandboxRejected State = "sandbox_rejected"
	StateRetrying        State = "retrying"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// Terminal reports whether the state ends the call's lifecycle.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateDenied
}
