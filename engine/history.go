package engine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/martinemde/conductor/modelclient"
	"github.com/martinemde/conductor/tools"
)

// EntryKind discriminates between history entry types.
type EntryKind string

const (
	EntryUser      EntryKind = "user"
	EntryAssistant EntryKind = "assistant"
	EntryToolCall  EntryKind = "tool_call"
	EntrySystem    EntryKind = "system"
)

// UserEntry holds user input.
type UserEntry struct {
	Content string `json:"content"`
}

// AssistantEntry holds one model response: its text, reasoning, proposed
// tool calls, and usage counters.
type AssistantEntry struct {
	Content   string                     `json:"content"`
	Reasoning string                     `json:"reasoning,omitempty"`
	ToolCalls []modelclient.ToolCallData `json:"tool_calls,omitempty"`
	Usage     modelclient.Usage          `json:"usage"`
}

// ToolCallRecord is the resolved record of one tool call. Ownership
// transfers into the history once the call reaches a terminal state.
type ToolCallRecord struct {
	CallID       string          `json:"call_id"`
	Kind         tools.Kind      `json:"kind"`
	Name         string          `json:"name"`
	RawArguments json.RawMessage `json:"raw_arguments,omitempty"`
	State        tools.State     `json:"state"`
	Content      string          `json:"content"`
	Success      bool            `json:"success"`
	Retried      bool            `json:"retried,omitempty"`
}

// SystemEntry holds a system or steering message.
type SystemEntry struct {
	Content string `json:"content"`
}

// HistoryEntry is one ordered record in a session's history. The index
// assigned at append time is its only stable identity.
type HistoryEntry struct {
	Kind      EntryKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	User      *UserEntry      `json:"user,omitempty"`
	Assistant *AssistantEntry `json:"assistant,omitempty"`
	ToolCall  *ToolCallRecord `json:"tool_call,omitempty"`
	System    *SystemEntry    `json:"system,omitempty"`
}

// NewUserEntry creates a history entry wrapping user input.
func NewUserEntry(content string) HistoryEntry {
	return HistoryEntry{
		Kind:      EntryUser,
		Timestamp: time.Now(),
		User:      &UserEntry{Content: content},
	}
}

// NewAssistantEntry creates a history entry wrapping a model response.
func NewAssistantEntry(content, reasoning string, toolCalls []modelclient.ToolCallData, usage modelclient.Usage) HistoryEntry {
	return HistoryEntry{
		Kind:      EntryAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantEntry{
			Content:   content,
			Reasoning: reasoning,
			ToolCalls: toolCalls,
			Usage:     usage,
		},
	}
}

// NewToolCallEntry creates a history entry wrapping a resolved tool call.
func NewToolCallEntry(rec ToolCallRecord) HistoryEntry {
	return HistoryEntry{
		Kind:      EntryToolCall,
		Timestamp: time.Now(),
		ToolCall:  &rec,
	}
}

// NewSystemEntry creates a history entry wrapping a system message.
func NewSystemEntry(content string) HistoryEntry {
	return HistoryEntry{
		Kind:      EntrySystem,
		Timestamp: time.Now(),
		System:    &SystemEntry{Content: content},
	}
}

// Store is the append-only session history. One writer (the owning task)
// appends; readers may query concurrently and always see fully appended
// entries or none.
type Store struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

// NewStore creates an empty history store.
func NewStore() *Store {
	return &Store{}
}

// Append adds an entry and returns its index.
func (s *Store) Append(e HistoryEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return len(s.entries) - 1
}

// Get returns the entry at index, if it exists.
func (s *Store) Get(index int) (HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.entries) {
		return HistoryEntry{}, false
	}
	return s.entries[index], true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries.
func (s *Store) Snapshot() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
