package engine

import (
	"github.com/google/uuid"

	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// OpKind discriminates between submission operations.
type OpKind string

const (
	OpUserInput       OpKind = "user_input"
	OpInterrupt       OpKind = "interrupt"
	OpOverrideContext OpKind = "override_turn_context"
	OpExecApproval    OpKind = "exec_approval"
	OpPatchApproval   OpKind = "patch_approval"
	OpAddToHistory    OpKind = "add_to_history"
	OpGetHistoryEntry OpKind = "get_history_entry"
)

// ContextOverrides carries optional turn-context changes. Nil fields leave
// the previous value in place.
type ContextOverrides struct {
	Cwd            *string
	ApprovalPolicy *tools.ApprovalPolicy
	SandboxPolicy  *sandbox.Policy
	Model          *string
	Provider       *string
	SystemPrompt   *string
}

// UserInputOp starts a new task with the given prompt.
type UserInputOp struct {
	Text      string
	Overrides *ContextOverrides
}

// ApprovalOp resolves a pending approval request. Used for both exec and
// patch approvals; the call id identifies the suspended call.
type ApprovalOp struct {
	CallID        string
	Approved      bool
	Justification string
}

// AddToHistoryOp appends an externally produced entry to the history.
type AddToHistoryOp struct {
	Entry HistoryEntry
}

// GetHistoryEntryOp requests the entry at the given index.
type GetHistoryEntryOp struct {
	Index int
}

// Op is the closed set of submission operations.
type Op struct {
	Kind            OpKind
	UserInput       *UserInputOp
	Override        *ContextOverrides
	Approval        *ApprovalOp
	AddToHistory    *AddToHistoryOp
	GetHistoryEntry *GetHistoryEntryOp
}

// Submission is one inbound operation with a unique id for correlating
// emitted events. Immutable once created.
type Submission struct {
	ID string
	Op Op
}

// NewUserInput creates a user-input submission with optional overrides.
func NewUserInput(text string, overrides *ContextOverrides) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpUserInput, UserInput: &UserInputOp{Text: text, Overrides: overrides}},
	}
}

// NewInterrupt creates an interrupt submission.
func NewInterrupt() Submission {
	return Submission{ID: uuid.New().String(), Op: Op{Kind: OpInterrupt}}
}

// NewOverrideContext creates a turn-context override submission.
func NewOverrideContext(overrides ContextOverrides) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpOverrideContext, Override: &overrides},
	}
}

// NewExecApproval resolves a pending shell approval.
func NewExecApproval(callID string, approved bool) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpExecApproval, Approval: &ApprovalOp{CallID: callID, Approved: approved}},
	}
}

// NewPatchApproval resolves a pending patch approval.
func NewPatchApproval(callID string, approved bool) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpPatchApproval, Approval: &ApprovalOp{CallID: callID, Approved: approved}},
	}
}

// NewAddToHistory appends an entry outside normal turn flow.
func NewAddToHistory(entry HistoryEntry) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpAddToHistory, AddToHistory: &AddToHistoryOp{Entry: entry}},
	}
}

// NewGetHistoryEntry requests the history entry at index.
func NewGetHistoryEntry(index int) Submission {
	return Submission{
		ID: uuid.New().String(),
		Op: Op{Kind: OpGetHistoryEntry, GetHistoryEntry: &GetHistoryEntryOp{Index: index}},
	}
}
