package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/conductor/modelclient"
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// SessionConfig holds per-session tunables.
type SessionConfig struct {
	MaxToolRoundsPerTurn  int
	DefaultCommandTimeout time.Duration
	MaxCommandTimeout     time.Duration
	ToolOutputLimits      map[string]int
	EnableLoopDetection   bool
	LoopDetectionWindow   int
	// ContextWindow approximates the model's window in tokens, for the
	// usage warning. Zero disables the check.
	ContextWindow int
	RetryPolicy   modelclient.RetryPolicy
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxToolRoundsPerTurn:  200,
		DefaultCommandTimeout: 10 * time.Second,
		MaxCommandTimeout:     10 * time.Minute,
		EnableLoopDetection:   true,
		LoopDetectionWindow:   10,
		ContextWindow:         200000,
		RetryPolicy:           modelclient.DefaultRetryPolicy(),
	}
}

// pendingApproval is one suspended call awaiting a human decision.
type pendingApproval struct {
	ch chan bool
}

// Session owns one logical conversation: its turn context, history, event
// bus, and the single active task slot. All mutation goes through the
// session's mutex; the running task is the only history writer.
type Session struct {
	id        string
	history   *Store
	bus       *Bus
	client    modelclient.Client
	executor  sandbox.Executor
	connector tools.Connector
	cfg       SessionConfig
	usage     *UsageAggregator
	global    *UsageAggregator
	log       *zap.Logger

	mu        sync.Mutex
	turnCtx   TurnContext
	running   bool
	cancel    context.CancelFunc
	pending   map[string]*pendingApproval
	resolved  map[string]bool
	followups []UserInputOp
}

// NewSession creates a session with the given collaborators. global is the
// process-wide usage aggregate shared across sessions.
func NewSession(
	tc TurnContext,
	client modelclient.Client,
	executor sandbox.Executor,
	connector tools.Connector,
	cfg SessionConfig,
	global *UsageAggregator,
	log *zap.Logger,
) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		history:   NewStore(),
		bus:       NewBus(id, 256),
		client:    client,
		executor:  executor,
		connector: connector,
		cfg:       cfg,
		usage:     &UsageAggregator{},
		global:    global,
		log:       log.With(zap.String("session_id", id)),
		turnCtx:   tc,
		pending:   make(map[string]*pendingApproval),
		resolved:  make(map[string]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session's event channel.
func (s *Session) Events() <-chan Event { return s.bus.Events() }

// History returns the session's history store.
func (s *Session) History() *Store { return s.history }

// Usage returns the session-scope usage totals.
func (s *Session) Usage() modelclient.Usage { return s.usage.Totals() }

// TurnContext returns the context the next turn will start from.
func (s *Session) TurnContext() TurnContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCtx
}

// OverrideContext applies overrides to the context used by future turns.
// The context of a turn already in flight is unaffected.
func (s *Session) OverrideContext(o *ContextOverrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCtx = s.turnCtx.Merge(o)
}

// StartTask begins a task for the given input, or queues it if a task is
// already running. It reports whether a new task was started.
func (s *Session) StartTask(subID string, op UserInputOp) bool {
	s.mu.Lock()
	if s.running {
		// One active task per session; later inputs run after it finishes.
		s.followups = append(s.followups, op)
		s.mu.Unlock()
		return false
	}
	s.running = true
	taskCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.runTask(taskCtx, subID, op)
	return true
}

// Interrupt cancels the running task, if any, and resolves every pending
// approval as denied. A no-op when idle, reported as an event either way.
func (s *Session) Interrupt(subID string) {
	s.mu.Lock()
	cancel := s.cancel
	wasRunning := s.running
	for id, pa := range s.pending {
		close(pa.ch)
		s.resolved[id] = true
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !wasRunning {
		s.bus.Emit(subID, EventWarning, map[string]any{
			"message": "interrupt received with no task running",
		})
	}
}

// ResolveApproval matches an approval decision to the suspended call. A
// decision for an unknown or already-resolved call id is reported as a
// protocol violation and otherwise ignored.
func (s *Session) ResolveApproval(subID string, op *ApprovalOp) {
	s.mu.Lock()
	pa, ok := s.pending[op.CallID]
	if ok {
		delete(s.pending, op.CallID)
		s.resolved[op.CallID] = true
	}
	alreadyResolved := s.resolved[op.CallID] && !ok
	s.mu.Unlock()

	if !ok {
		reason := "approval for unknown call_id"
		if alreadyResolved {
			reason = "approval for already-resolved call_id"
		}
		s.log.Warn("protocol violation",
			zap.String("call_id", op.CallID),
			zap.String("reason", reason))
		s.bus.Emit(subID, EventProtocolViolation, map[string]any{
			"call_id": op.CallID,
			"reason":  reason,
		})
		return
	}
	pa.ch <- op.Approved
	close(pa.ch)
}

// registerPending creates (or returns) the pending slot for a call. The
// slot is registered before the approval-requested event goes out, so a
// fast front-end response always finds it.
func (s *Session) registerPending(callID string) *pendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pa, ok := s.pending[callID]; ok {
		return pa
	}
	pa := &pendingApproval{ch: make(chan bool, 1)}
	s.pending[callID] = pa
	return pa
}

// RequestApproval suspends until a matching approval submission arrives or
// the task is interrupted. Implements tools.Approver.
func (s *Session) RequestApproval(ctx context.Context, callID, reason string) (bool, error) {
	pa := s.registerPending(callID)

	select {
	case approved, ok := <-pa.ch:
		if !ok {
			// Channel closed by Interrupt.
			return false, context.Canceled
		}
		return approved, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, callID)
		s.resolved[callID] = true
		s.mu.Unlock()
		return false, ctx.Err()
	}
}

// runTask executes turns for the input and then drains queued follow-ups.
func (s *Session) runTask(ctx context.Context, subID string, op UserInputOp) {
	for {
		s.mu.Lock()
		s.turnCtx = s.turnCtx.Merge(op.Overrides)
		tc := s.turnCtx
		s.mu.Unlock()

		s.history.Append(NewUserEntry(op.Text))
		s.runTurn(ctx, subID, tc)

		s.mu.Lock()
		if len(s.followups) == 0 || ctx.Err() != nil {
			// The empty-queue check and the slot release are one atomic
			// step: an input queued against a released slot starts its own
			// task, and one queued before the check drains here. An
			// interrupt discards whatever was queued behind it.
			s.followups = nil
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
			return
		}
		op = s.followups[0]
		s.followups = s.followups[1:]
		s.mu.Unlock()
	}
}

// Close shuts down the session's event channel.
func (s *Session) Close() {
	s.bus.Close()
}
