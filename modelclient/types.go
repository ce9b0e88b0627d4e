package modelclient

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallData is a model-initiated tool invocation carried on an
// assistant message.
type ToolCallData struct {
	CallID       string          `json:"call_id"`
	Name         string          `json:"name"`
	RawArguments json.RawMessage `json:"raw_arguments"`
}

// ToolResultData carries the outcome of a tool execution back to the model.
type ToolResultData struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Message is one entry in the outgoing conversation.
type Message struct {
	Role        Role             `json:"role"`
	Text        string           `json:"text,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	ToolCalls   []ToolCallData   `json:"tool_calls,omitempty"`
	ToolResults []ToolResultData `json:"tool_results,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage creates an assistant Message with text and tool calls.
func AssistantMessage(text string, calls []ToolCallData) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResultsMessage creates a tool-role Message carrying execution results.
func ToolResultsMessage(results []ToolResultData) Message {
	return Message{Role: RoleTool, ToolResults: results}
}

// ToolDefinition is the serializable tool schema sent with a request.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is the input to Client.Stream.
type Request struct {
	Model           string           `json:"model"`
	Provider        string           `json:"provider,omitempty"`
	Messages        []Message        `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	ReasoningEffort string           `json:"reasoning_effort,omitempty"`
}

// Usage tracks token consumption for one model response. Counters are
// non-negative and accumulate monotonically at session scope.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// FragmentKind discriminates between fragment variants.
type FragmentKind string

const (
	FragmentReasoning  FragmentKind = "reasoning"
	FragmentText       FragmentKind = "text"
	FragmentToolCall   FragmentKind = "tool_call"
	FragmentCompletion FragmentKind = "completion"
)

// ToolCallFragment is the tool-call payload of a fragment.
type ToolCallFragment struct {
	CallID       string          `json:"call_id"`
	Name         string          `json:"name"`
	RawArguments json.RawMessage `json:"raw_arguments"`
	// Custom marks freeform (non-JSON-function) tool invocations.
	Custom bool `json:"custom,omitempty"`
	// LocalShell marks the provider's built-in shell tool kind.
	LocalShell bool `json:"local_shell,omitempty"`
}

// Fragment is one incremental piece of a streamed model response.
type Fragment struct {
	Kind     FragmentKind      `json:"kind"`
	Text     string            `json:"text,omitempty"`
	ToolCall *ToolCallFragment `json:"tool_call,omitempty"`
	Usage    *Usage            `json:"usage,omitempty"`
}

// ReasoningFragment creates a reasoning Fragment.
func ReasoningFragment(text string) Fragment {
	return Fragment{Kind: FragmentReasoning, Text: text}
}

// TextFragment creates a text Fragment.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// ToolCallFrag creates a tool-call Fragment.
func ToolCallFrag(callID, name string, args json.RawMessage) Fragment {
	return Fragment{
		Kind:     FragmentToolCall,
		ToolCall: &ToolCallFragment{CallID: callID, Name: name, RawArguments: args},
	}
}

// CompletionFragment creates the terminal Fragment carrying usage counters.
func CompletionFragment(usage Usage) Fragment {
	return Fragment{Kind: FragmentCompletion, Usage: &usage}
}

// JoinText concatenates the text of the given fragments.
func JoinText(frags []Fragment) string {
	var sb strings.Builder
	for _, f := range frags {
		sb.WriteString(f.Text)
	}
	return sb.String()
}
