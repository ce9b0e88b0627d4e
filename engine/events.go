package engine

import (
	"sync"
	"time"
)

// EventKind identifies the type of engine event.
type EventKind string

const (
	EventTurnStarted             EventKind = "turn_started"
	EventReasoningFragment       EventKind = "reasoning_fragment"
	EventTextFragment            EventKind = "text_fragment"
	EventToolCallProposed        EventKind = "tool_call_proposed"
	EventApprovalRequested       EventKind = "approval_requested"
	EventToolCallStarted         EventKind = "tool_call_started"
	EventToolCallSandboxRejected EventKind = "tool_call_sandbox_rejected"
	EventToolCallRetrying        EventKind = "tool_call_retrying"
	EventToolCallCompleted       EventKind = "tool_call_completed"
	EventTurnCompleted           EventKind = "turn_completed"
	EventHistoryEntry            EventKind = "history_entry"
	EventLoopDetection           EventKind = "loop_detection"
	EventWarning                 EventKind = "warning"
	EventProtocolViolation       EventKind = "protocol_violation"
	EventError                   EventKind = "error"
)

// Event is a typed notification from the engine to the front end.
type Event struct {
	Kind         EventKind      `json:"kind"`
	SubmissionID string         `json:"submission_id,omitempty"`
	SessionID    string         `json:"session_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// Bus delivers events to the front end over an ordered channel. Emit
// blocks when the buffer fills rather than dropping: per-session event
// order is a guarantee, so the consumer must keep draining.
type Bus struct {
	sessionID string
	ch        chan Event
	mu        sync.Mutex
	closed    bool
}

// NewBus creates a bus with the given buffer size.
func NewBus(sessionID string, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		sessionID: sessionID,
		ch:        make(chan Event, bufferSize),
	}
}

// Emit delivers one event in order. Events emitted after Close are
// discarded. The lock is held across the send so Close never races a
// blocked emitter onto a closed channel.
func (b *Bus) Emit(subID string, kind EventKind, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ch <- Event{
		Kind:         kind,
		SubmissionID: subID,
		SessionID:    b.sessionID,
		Timestamp:    time.Now(),
		Data:         data,
	}
}

// Events returns the read-only event channel.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the event channel. Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
