package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/conductor/modelclient"
	"github.com/martinemde/conductor/tools"
)

// TurnStatus is the terminal state of one turn.
type TurnStatus string

const (
	TurnCompleted   TurnStatus = "completed"
	TurnInterrupted TurnStatus = "interrupted"
	TurnFailed      TurnStatus = "failed"
)

// turnReporter forwards orchestrator lifecycle notifications onto the
// session's event bus.
type turnReporter struct {
	s     *Session
	subID string
}

func (r *turnReporter) ApprovalRequested(callID, reason string) {
	// Register before the event goes out so a fast response finds the slot.
	r.s.registerPending(callID)
	r.s.bus.Emit(r.subID, EventApprovalRequested, map[string]any{
		"call_id": callID,
		"reason":  reason,
	})
}

func (r *turnReporter) CallStarted(call tools.Call) {
	r.s.bus.Emit(r.subID, EventToolCallStarted, map[string]any{
		"call_id": call.CallID,
		"name":    call.Name,
		"kind":    string(call.Kind),
	})
}

func (r *turnReporter) SandboxRejected(callID string) {
	r.s.bus.Emit(r.subID, EventToolCallSandboxRejected, map[string]any{
		"call_id": callID,
	})
}

func (r *turnReporter) Retrying(callID string) {
	r.s.bus.Emit(r.subID, EventToolCallRetrying, map[string]any{
		"call_id": callID,
	})
}

// callSlot tracks one proposed call through concurrent execution. Slots
// are ordered by emission; results fold into history in slot order, not
// completion order.
type callSlot struct {
	call    tools.Call
	outcome tools.Outcome
	done    chan struct{}
}

// isPatchCall reports whether the call mutates workspace files and must
// therefore run serially relative to other patch calls.
func isPatchCall(c tools.Call) bool {
	return c.Kind == tools.KindCustom || (c.Kind == tools.KindFunction && c.Name == "apply_patch")
}

// runTurn drives one full turn: repeated model rounds, each streaming
// fragments and executing proposed tool calls, until a round ends with no
// tool calls or the turn is interrupted or fails.
func (s *Session) runTurn(ctx context.Context, subID string, tc TurnContext) TurnStatus {
	s.bus.Emit(subID, EventTurnStarted, map[string]any{
		"model":    tc.Model,
		"provider": tc.Provider,
		"cwd":      tc.Cwd,
	})

	orch := &tools.Orchestrator{
		Gate:           tc.Gate(),
		Exec:           s.executor,
		Connector:      s.connector,
		Cwd:            tc.Cwd,
		DefaultTimeout: s.cfg.DefaultCommandTimeout,
		MaxTimeout:     s.cfg.MaxCommandTimeout,
		CharLimits:     s.cfg.ToolOutputLimits,
		Log:            s.log,
	}
	rep := &turnReporter{s: s, subID: subID}
	schema := s.toolSchema(ctx)

	var turnUsage modelclient.Usage
	status := TurnCompleted
	seenCallIDs := make(map[string]bool)

	for round := 0; round < s.cfg.MaxToolRoundsPerTurn; round++ {
		req := modelclient.Request{
			Model:    tc.Model,
			Provider: tc.Provider,
			Messages: s.buildMessages(tc),
			Tools:    schema,
		}
		stream := modelclient.StreamWithRetry(ctx, s.client, req, s.cfg.RetryPolicy)

		var (
			text      string
			reasoning string
			usage     modelclient.Usage
			slots     []*callSlot
			grp       errgroup.Group
			lastPatch chan struct{}
			streamErr error
		)

		for {
			frag, err := stream.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				streamErr = err
				break
			}
			switch frag.Kind {
			case modelclient.FragmentReasoning:
				reasoning += frag.Text
				s.bus.Emit(subID, EventReasoningFragment, map[string]any{"text": frag.Text})

			case modelclient.FragmentText:
				text += frag.Text
				s.bus.Emit(subID, EventTextFragment, map[string]any{"text": frag.Text})

			case modelclient.FragmentCompletion:
				if frag.Usage != nil {
					usage = *frag.Usage
				}

			case modelclient.FragmentToolCall:
				call := tools.FromFragment(*frag.ToolCall)
				if seenCallIDs[call.CallID] {
					s.log.Warn("duplicate call_id in turn", zap.String("call_id", call.CallID))
					s.bus.Emit(subID, EventProtocolViolation, map[string]any{
						"call_id": call.CallID,
						"reason":  "duplicate call_id within turn",
					})
					continue
				}
				seenCallIDs[call.CallID] = true

				s.bus.Emit(subID, EventToolCallProposed, map[string]any{
					"call_id": call.CallID,
					"name":    call.Name,
					"kind":    string(call.Kind),
				})

				// Execution starts while trailing fragments still stream.
				// Patch calls chain on the previous patch call so overlapping
				// file mutations keep emission order; everything else runs
				// concurrently.
				slot := &callSlot{call: call, done: make(chan struct{})}
				var waitFor chan struct{}
				if isPatchCall(call) {
					waitFor = lastPatch
					lastPatch = slot.done
				}
				slots = append(slots, slot)
				grp.Go(func() error {
					defer close(slot.done)
					if waitFor != nil {
						select {
						case <-waitFor:
						case <-ctx.Done():
							slot.outcome = tools.Outcome{
								CallID:  slot.call.CallID,
								State:   tools.StateDenied,
								Content: "denied: interrupted before execution",
							}
							return nil
						}
					}
					slot.outcome = orch.Execute(ctx, slot.call, s, rep)
					return nil
				})
			}
		}

		_ = grp.Wait()
		stream.Close()

		turnUsage = turnUsage.Add(usage)
		s.usage.Add(usage)
		s.global.Add(usage)

		if text != "" || reasoning != "" || len(slots) > 0 {
			calls := make([]modelclient.ToolCallData, 0, len(slots))
			for _, slot := range slots {
				calls = append(calls, modelclient.ToolCallData{
					CallID:       slot.call.CallID,
					Name:         slot.call.Name,
					RawArguments: slot.call.RawArguments,
				})
			}
			s.history.Append(NewAssistantEntry(text, reasoning, calls, usage))
		}

		// Fold results in emission order regardless of completion order.
		for _, slot := range slots {
			rec := ToolCallRecord{
				CallID:       slot.call.CallID,
				Kind:         slot.call.Kind,
				Name:         slot.call.Name,
				RawArguments: slot.call.RawArguments,
				State:        slot.outcome.State,
				Content:      slot.outcome.Content,
				Success:      slot.outcome.Success,
				Retried:      slot.outcome.Retried,
			}
			s.history.Append(NewToolCallEntry(rec))
			s.bus.Emit(subID, EventToolCallCompleted, map[string]any{
				"call_id": rec.CallID,
				"state":   string(rec.State),
				"success": rec.Success,
				"content": rec.Content,
			})
		}

		if streamErr != nil {
			if ctx.Err() != nil {
				status = TurnInterrupted
			} else {
				status = TurnFailed
				s.log.Error("model stream failed", zap.Error(streamErr))
				s.bus.Emit(subID, EventError, map[string]any{"error": streamErr.Error()})
			}
			break
		}

		if len(slots) == 0 {
			break
		}
		if ctx.Err() != nil {
			// In-flight executions finished above; no new round starts after
			// an interrupt.
			status = TurnInterrupted
			break
		}

		s.checkContextUsage(subID)
		s.checkForLoop(subID)

		if round == s.cfg.MaxToolRoundsPerTurn-1 {
			s.bus.Emit(subID, EventWarning, map[string]any{
				"message": fmt.Sprintf("turn stopped after reaching the %d-round limit", s.cfg.MaxToolRoundsPerTurn),
			})
		}
	}

	s.bus.Emit(subID, EventTurnCompleted, map[string]any{
		"status":        string(status),
		"input_tokens":  turnUsage.InputTokens,
		"output_tokens": turnUsage.OutputTokens,
		"total_tokens":  turnUsage.TotalTokens,
	})
	return status
}

// buildMessages converts history into the outgoing conversation, prefixed
// by the assembled system prompt.
func (s *Session) buildMessages(tc TurnContext) []modelclient.Message {
	messages := []modelclient.Message{modelclient.SystemMessage(BuildSystemPrompt(tc))}

	var pendingResults []modelclient.ToolResultData
	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, modelclient.ToolResultsMessage(pendingResults))
			pendingResults = nil
		}
	}

	for _, entry := range s.history.Snapshot() {
		switch entry.Kind {
		case EntryUser:
			flush()
			if entry.User != nil {
				messages = append(messages, modelclient.UserMessage(entry.User.Content))
			}
		case EntryAssistant:
			flush()
			if entry.Assistant != nil {
				msg := modelclient.AssistantMessage(entry.Assistant.Content, entry.Assistant.ToolCalls)
				msg.Reasoning = entry.Assistant.Reasoning
				messages = append(messages, msg)
			}
		case EntryToolCall:
			if entry.ToolCall != nil {
				pendingResults = append(pendingResults, modelclient.ToolResultData{
					CallID:  entry.ToolCall.CallID,
					Content: entry.ToolCall.Content,
					IsError: !entry.ToolCall.Success && entry.ToolCall.State != tools.StateSucceeded,
				})
			}
		case EntrySystem:
			flush()
			// Steering messages go out as user messages so the model treats
			// them as instructions.
			if entry.System != nil {
				messages = append(messages, modelclient.UserMessage(entry.System.Content))
			}
		}
	}
	flush()
	return messages
}

// toolSchema declares the engine's tools plus any tools advertised by
// configured MCP servers.
func (s *Session) toolSchema(ctx context.Context) []modelclient.ToolDefinition {
	defs := []modelclient.ToolDefinition{
		{
			Name:        "shell",
			Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "The command and its arguments as an array of strings.",
					},
					"workdir": map[string]interface{}{
						"type":        "string",
						"description": "Working directory for the command. Default: session cwd.",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Override the default command timeout in milliseconds.",
					},
					"justification": map[string]interface{}{
						"type":        "string",
						"description": "Why this command is needed. Shown when approval is requested.",
					},
				},
				"required": []string{"command"},
			},
		},
		{
			Name: "apply_patch",
			Description: "Apply code changes using the v4a patch format. Supports creating, deleting, " +
				"and modifying files in a single atomic operation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"patch": map[string]interface{}{
						"type":        "string",
						"description": "The patch content in v4a format.",
					},
				},
				"required": []string{"patch"},
			},
		},
	}

	type toolLister interface {
		ListTools(ctx context.Context) []modelclient.ToolDefinition
	}
	if lister, ok := s.connector.(toolLister); ok {
		defs = append(defs, lister.ListTools(ctx)...)
	}
	return defs
}

// checkContextUsage warns when the approximate token count of the history
// crosses 80% of the configured context window.
func (s *Session) checkContextUsage(subID string) {
	if s.cfg.ContextWindow <= 0 {
		return
	}
	totalChars := 0
	for _, entry := range s.history.Snapshot() {
		switch {
		case entry.User != nil:
			totalChars += len(entry.User.Content)
		case entry.Assistant != nil:
			totalChars += len(entry.Assistant.Content) + len(entry.Assistant.Reasoning)
		case entry.ToolCall != nil:
			totalChars += len(entry.ToolCall.Content)
		case entry.System != nil:
			totalChars += len(entry.System.Content)
		}
	}
	approxTokens := totalChars / 4
	threshold := int(float64(s.cfg.ContextWindow) * 0.8)
	if approxTokens > threshold {
		pct := approxTokens * 100 / s.cfg.ContextWindow
		s.bus.Emit(subID, EventWarning, map[string]any{
			"message": fmt.Sprintf("Context usage at ~%d%% of context window", pct),
		})
	}
}

// checkForLoop injects a steering warning when recent tool calls repeat.
func (s *Session) checkForLoop(subID string) {
	if !s.cfg.EnableLoopDetection {
		return
	}
	if DetectLoop(s.history.Snapshot(), s.cfg.LoopDetectionWindow) {
		warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.",
			s.cfg.LoopDetectionWindow)
		s.history.Append(NewSystemEntry(warning))
		s.bus.Emit(subID, EventLoopDetection, map[string]any{"message": warning})
	}
}
