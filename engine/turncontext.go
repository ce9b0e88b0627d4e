package engine

import (
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// TurnContext is the configuration bundle a turn runs under. It is built
// fresh at turn start from the previous context plus any overrides, and is
// never mutated while the turn runs.
type TurnContext struct {
	Cwd            string
	ApprovalPolicy tools.ApprovalPolicy
	SandboxPolicy  sandbox.Policy
	Model          string
	Provider       string
	SystemPrompt   string
}

// Merge returns a new context with non-nil override fields applied.
func (tc TurnContext) Merge(o *ContextOverrides) TurnContext {
	if o == nil {
		return tc
	}
	next := tc
	if o.Cwd != nil {
		next.Cwd = *o.Cwd
	}
	if o.ApprovalPolicy != nil {
		next.ApprovalPolicy = *o.ApprovalPolicy
	}
	if o.SandboxPolicy != nil {
		next.SandboxPolicy = *o.SandboxPolicy
	}
	if o.Model != nil {
		next.Model = *o.Model
	}
	if o.Provider != nil {
		next.Provider = *o.Provider
	}
	if o.SystemPrompt != nil {
		next.SystemPrompt = *o.SystemPrompt
	}
	return next
}

// Gate builds the approval gate for this context.
func (tc TurnContext) Gate() *tools.Gate {
	return &tools.Gate{
		Approval: tc.ApprovalPolicy,
		Sandbox:  tc.SandboxPolicy,
		Root:     tc.Cwd,
	}
}
