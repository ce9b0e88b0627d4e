package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/conductor/sandbox"
)

// Approver suspends a call awaiting a human decision. Implementations
// resolve the returned future when a matching approval submission arrives;
// an interrupt resolves it as denied.
type Approver interface {
	RequestApproval(ctx context.Context, callID, reason string) (bool, error)
}

// Reporter receives lifecycle notifications while a call executes, so the
// engine can emit ordered per-call events without the orchestrator knowing
// about the event bus.
type Reporter interface {
	ApprovalRequested(callID, reason string)
	CallStarted(call Call)
	SandboxRejected(callID string)
	Retrying(callID string)
}

// Outcome is the terminal result of one orchestrated call.
type Outcome struct {
	CallID  string
	State   State
	Content string
	Success bool
	// Retried is set when the call succeeded or failed on the no-sandbox
	// second attempt.
	Retried bool
}

// Orchestrator drives a parsed call through policy check, optional
// approval, and execution, including the single no-sandbox retry when the
// isolation layer blocked an approved command.
type Orchestrator struct {
	Gate      *Gate
	Exec      sandbox.Executor
	Connector Connector

	Cwd            string
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	// CharLimits overrides output truncation bounds per tool name.
	CharLimits map[string]int

	Log *zap.Logger
}

// Execute runs the full per-call state machine. It never panics the turn:
// every failure mode resolves to a terminal Outcome.
func (o *Orchestrator) Execute(ctx context.Context, call Call, approver Approver, rep Reporter) Outcome {
	switch call.Kind {
	case KindLocalShell:
		return o.executeShell(ctx, call, approver, rep)
	case KindMcp:
		return o.executeMcp(ctx, call, approver, rep)
	case KindCustom:
		return o.executePatch(ctx, call, approver, rep)
	case KindFunction:
		switch call.Name {
		case "shell":
			return o.executeShell(ctx, call, approver, rep)
		case "apply_patch":
			return o.executePatch(ctx, call, approver, rep)
		default:
			return o.fail(call, fmt.Sprintf("unsupported tool %q", call.Name))
		}
	default:
		return o.fail(call, fmt.Sprintf("unsupported tool kind %q", call.Kind))
	}
}

func (o *Orchestrator) executeShell(ctx context.Context, call Call, approver Approver, rep Reporter) Outcome {
	req, err := DecodeShellRequest(call.RawArguments)
	if err != nil {
		// Decode failures feed the corrective example back to the model;
		// no process is spawned.
		return o.fail(call, err.Error())
	}

	verdict := o.Gate.CheckShell(req)
	outcome, cleared := o.clearApproval(ctx, call, verdict, approver, rep)
	if !cleared {
		return outcome
	}

	rep.CallStarted(call)

	cwd := o.Cwd
	if req.Workdir != "" {
		cwd = req.Workdir
	}
	cmd := sandbox.Command{
		Argv:    req.Command,
		Cwd:     cwd,
		Timeout: req.Timeout(o.DefaultTimeout, o.MaxTimeout),
	}

	result, err := o.Exec.Run(ctx, cmd, o.Gate.Sandbox)
	if err != nil {
		return o.fail(call, fmt.Sprintf("failed to spawn command: %v", err))
	}

	retried := false
	if result.SandboxDenied {
		rep.SandboxRejected(call.CallID)
		if !o.Gate.AllowsUnsandboxedRetry() {
			sdErr := &SandboxDenialError{Command: req.CommandLine(), Output: result.Output()}
			return o.failWithState(call, StateFailed, sdErr.Error()+"\n"+result.Output(), false)
		}
		rep.Retrying(call.CallID)
		o.Log.Info("retrying command without sandbox",
			zap.String("call_id", call.CallID),
			zap.String("command", req.CommandLine()))
		retried = true
		result, err = o.Exec.Run(ctx, cmd, sandbox.PolicyDangerFullAccess)
		if err != nil {
			return o.fail(call, fmt.Sprintf("failed to respawn command: %v", err))
		}
	}

	content := result.Output()
	if result.TimedOut {
		content += fmt.Sprintf("\n\n[ERROR: Command timed out after %s. Partial output is shown above. "+
			"You can retry with a longer timeout by setting the timeout_ms parameter.]", cmd.Timeout)
	} else if result.ExitCode != 0 {
		content += fmt.Sprintf("\n\n[Exit code: %d]", result.ExitCode)
	}
	content = TruncateForTool(content, toolLabel(call), o.CharLimits)

	success := result.ExitCode == 0 && !result.TimedOut
	state := StateSucceeded
	if !success {
		state = StateFailed
	}
	return Outcome{CallID: call.CallID, State: state, Content: content, Success: success, Retried: retried}
}

func (o *Orchestrator) executePatch(ctx context.Context, call Call, approver Approver, rep Reporter) Outcome {
	text, err := DecodePatchText(call.RawArguments, call.Kind)
	if err != nil {
		return o.fail(call, err.Error())
	}
	patch, err := ParsePatch(text)
	if err != nil {
		return o.fail(call, err.Error())
	}

	verdict := o.Gate.CheckPatch(patch)
	outcome, cleared := o.clearApproval(ctx, call, verdict, approver, rep)
	if !cleared {
		return outcome
	}

	rep.CallStarted(call)

	result, err := patch.Apply(o.Cwd)
	if err != nil {
		return o.fail(call, err.Error())
	}
	return Outcome{
		CallID:  call.CallID,
		State:   StateSucceeded,
		Content: TruncateForTool(result, "apply_patch", o.CharLimits),
		Success: true,
	}
}

func (o *Orchestrator) executeMcp(ctx context.Context, call Call, approver Approver, rep Reporter) Outcome {
	var args map[string]any
	if len(call.RawArguments) > 0 {
		if err := json.Unmarshal(call.RawArguments, &args); err != nil {
			decodeErr := &DecodeError{
				Tool:    call.Name,
				Reason:  fmt.Sprintf("arguments are not a JSON object: %v", err),
				Example: `{"key": "value"}`,
			}
			return o.fail(call, decodeErr.Error())
		}
	}

	verdict := o.Gate.CheckMcp(call)
	outcome, cleared := o.clearApproval(ctx, call, verdict, approver, rep)
	if !cleared {
		return outcome
	}

	rep.CallStarted(call)

	result, err := o.Connector.Invoke(ctx, call.Server, call.Tool, args)
	if err != nil {
		content := err.Error()
		if execErr, ok := err.(*ExecutionError); ok && execErr.Output != "" {
			content += "\n" + execErr.Output
		}
		return o.fail(call, content)
	}
	return Outcome{
		CallID:  call.CallID,
		State:   StateSucceeded,
		Content: TruncateForTool(result, "mcp", o.CharLimits),
		Success: true,
	}
}

// clearApproval resolves the gate verdict. It returns cleared=true when
// execution may proceed; otherwise the returned Outcome is terminal.
func (o *Orchestrator) clearApproval(ctx context.Context, call Call, v Verdict, approver Approver, rep Reporter) (Outcome, bool) {
	switch v.Decision {
	case DecideAuto:
		return Outcome{}, true
	case DecideDeny:
		denial := &DenialError{Reason: v.Reason}
		o.Log.Info("call denied by policy",
			zap.String("call_id", call.CallID),
			zap.String("reason", v.Reason))
		return Outcome{
			CallID:  call.CallID,
			State:   StateDenied,
			Content: denial.Error(),
		}, false
	case DecideAsk:
		rep.ApprovalRequested(call.CallID, v.Reason)
		approved, err := approver.RequestApproval(ctx, call.CallID, v.Reason)
		if err != nil {
			return Outcome{
				CallID:  call.CallID,
				State:   StateDenied,
				Content: (&DenialError{Reason: "denied by interrupt"}).Error(),
			}, false
		}
		if !approved {
			return Outcome{
				CallID:  call.CallID,
				State:   StateDenied,
				Content: (&DenialError{Reason: "denied by user"}).Error(),
			}, false
		}
		return Outcome{}, true
	default:
		return Outcome{
			CallID:  call.CallID,
			State:   StateFailed,
			Content: fmt.Sprintf("unknown gate decision %q", v.Decision),
		}, false
	}
}

func (o *Orchestrator) fail(call Call, content string) Outcome {
	return o.failWithState(call, StateFailed, content, false)
}

func (o *Orchestrator) failWithState(call Call, state State, content string, retried bool) Outcome {
	return Outcome{CallID: call.CallID, State: state, Content: content, Retried: retried}
}

// toolLabel names the call for truncation limits and history records.
func toolLabel(c Call) string {
	if c.Kind == KindMcp {
		return "mcp"
	}
	if c.Name != "" {
		return c.Name
	}
	return string(c.Kind)
}
