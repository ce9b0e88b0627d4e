package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/modelclient"
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// Loop is the top-level control loop for one session. It consumes
// submissions from an ordered channel, dispatches each to its handler, and
// emits events on the session's bus. The dispatch table is total: every
// operation has exactly one handler, and malformed submissions produce an
// error event rather than a crash.
type Loop struct {
	session *Session
	subs    chan Submission
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewLoop starts the control loop for the given session.
func NewLoop(session *Session, log *zap.Logger) *Loop {
	l := &Loop{
		session: session,
		subs:    make(chan Submission, 64),
		log:     log,
	}
	go l.run()
	return l
}

// New wires a complete engine from configuration: session, policies, and
// control loop.
func New(
	cfg *config.Config,
	client modelclient.Client,
	executor sandbox.Executor,
	connector tools.Connector,
	log *zap.Logger,
) (*Loop, error) {
	approval, err := tools.ParseApprovalPolicy(cfg.ApprovalPolicy)
	if err != nil {
		return nil, err
	}
	sbPolicy, err := sandbox.ParsePolicy(cfg.SandboxPolicy)
	if err != nil {
		return nil, err
	}

	tc := TurnContext{
		Cwd:            cfg.Cwd,
		ApprovalPolicy: approval,
		SandboxPolicy:  sbPolicy,
		Model:          cfg.Model,
		Provider:       cfg.Provider,
		SystemPrompt:   cfg.SystemPrompt,
	}

	sc := DefaultSessionConfig()
	if cfg.MaxToolRoundsPerTurn > 0 {
		sc.MaxToolRoundsPerTurn = cfg.MaxToolRoundsPerTurn
	}
	if cfg.DefaultCommandTimeoutMs > 0 {
		sc.DefaultCommandTimeout = time.Duration(cfg.DefaultCommandTimeoutMs) * time.Millisecond
	}
	if cfg.MaxCommandTimeoutMs > 0 {
		sc.MaxCommandTimeout = time.Duration(cfg.MaxCommandTimeoutMs) * time.Millisecond
	}
	if len(cfg.ToolOutputLimits) > 0 {
		sc.ToolOutputLimits = cfg.ToolOutputLimits
	}

	session := NewSession(tc, client, executor, connector, sc, &UsageAggregator{}, log)
	return NewLoop(session, log), nil
}

// Session returns the loop's session.
func (l *Loop) Session() *Session { return l.session }

// Events returns the session's event channel.
func (l *Loop) Events() <-chan Event { return l.session.Events() }

// Submit enqueues a submission. It returns an error once the loop is
// closed. The lock is held across the send so Close never races a
// submitter onto a closed channel.
func (l *Loop) Submit(sub Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("submission loop is closed")
	}
	l.subs <- sub
	return nil
}

// Close stops the loop and shuts down the session's event channel once
// queued submissions drain. Safe to call multiple times.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.subs)
}

func (l *Loop) run() {
	for sub := range l.subs {
		l.dispatch(sub)
	}
	l.session.Close()
}

// dispatch routes one submission. Synchronous handlers complete inline;
// user input spawns a task on the session.
func (l *Loop) dispatch(sub Submission) {
	switch sub.Op.Kind {
	case OpUserInput:
		if sub.Op.UserInput == nil || sub.Op.UserInput.Text == "" {
			l.emitError(sub.ID, "user_input submission carries no text")
			return
		}
		started := l.session.StartTask(sub.ID, *sub.Op.UserInput)
		if !started {
			l.session.bus.Emit(sub.ID, EventWarning, map[string]any{
				"message": "task already running; input queued as follow-up",
			})
		}

	case OpInterrupt:
		l.session.Interrupt(sub.ID)

	case OpOverrideContext:
		if sub.Op.Override == nil {
			l.emitError(sub.ID, "override submission carries no overrides")
			return
		}
		l.session.OverrideContext(sub.Op.Override)

	case OpExecApproval, OpPatchApproval:
		if sub.Op.Approval == nil {
			l.emitError(sub.ID, "approval submission carries no decision")
			return
		}
		l.session.ResolveApproval(sub.ID, sub.Op.Approval)

	case OpAddToHistory:
		if sub.Op.AddToHistory == nil {
			l.emitError(sub.ID, "add_to_history submission carries no entry")
			return
		}
		index := l.session.history.Append(sub.Op.AddToHistory.Entry)
		l.session.bus.Emit(sub.ID, EventHistoryEntry, map[string]any{
			"index": index,
		})

	case OpGetHistoryEntry:
		if sub.Op.GetHistoryEntry == nil {
			l.emitError(sub.ID, "get_history_entry submission carries no index")
			return
		}
		index := sub.Op.GetHistoryEntry.Index
		entry, ok := l.session.history.Get(index)
		if !ok {
			l.emitError(sub.ID, fmt.Sprintf("no history entry at index %d", index))
			return
		}
		l.session.bus.Emit(sub.ID, EventHistoryEntry, map[string]any{
			"index": index,
			"entry": entry,
		})

	default:
		l.log.Warn("unknown submission operation", zap.String("kind", string(sub.Op.Kind)))
		l.emitError(sub.ID, fmt.Sprintf("unknown operation %q", sub.Op.Kind))
	}
}

func (l *Loop) emitError(subID, message string) {
	l.session.bus.Emit(subID, EventError, map[string]any{"error": message})
}
