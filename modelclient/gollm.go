package modelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmClient adapts a gollm.LLM to the Client interface. gollm handles the
// provider wire formats; this adapter translates the conversation in, and
// synthesizes the fragment sequence out of the generated response.
type GollmClient struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmClient.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmClient creates an adapter for the given provider. If no API key is
// supplied, gollm reads it from the provider's environment variable.
func NewGollmClient(provider string, opts ...GollmOption) (*GollmClient, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry is handled by StreamWithRetry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmClient{provider: provider, llm: llm, model: model}, nil
}

// Provider returns the provider identifier.
func (c *GollmClient) Provider() string { return c.provider }

// Stream implements Client. gollm's Generate is blocking, so the adapter
// runs it in a goroutine and replays the parsed response as fragments.
func (c *GollmClient) Stream(ctx context.Context, req Request) (*ResponseStream, error) {
	prompt, err := c.translateRequest(req)
	if err != nil {
		return nil, err
	}

	if req.Model != "" {
		c.llm.SetOption("model", req.Model)
	}

	stream := NewResponseStream(64)
	go func() {
		text, err := c.llm.Generate(ctx, prompt)
		if err != nil {
			stream.Fail(c.translateError(err))
			return
		}

		calls := c.parseToolCalls(text)
		cleaned := c.removeToolCallJSON(text, calls)

		if cleaned != "" {
			if !stream.Push(TextFragment(cleaned)) {
				return
			}
		}
		for _, tc := range calls {
			if !stream.Push(Fragment{Kind: FragmentToolCall, ToolCall: &tc}) {
				return
			}
		}
		// gollm does not expose provider usage counters; approximate from
		// request and response sizes.
		in := estimateTokens(req)
		out := int64(len(text) / 4)
		stream.Push(CompletionFragment(Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		}))
		stream.Finish()
	}()

	return stream, nil
}

// translateRequest converts a Request into a gollm Prompt.
func (c *GollmClient) translateRequest(req Request) (*gollm.Prompt, error) {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Text + "\n"
		case RoleUser:
			userParts = append(userParts, msg.Text)
		case RoleAssistant:
			if msg.Text != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Text)
			}
			for _, tc := range msg.ToolCalls {
				userParts = append(userParts,
					fmt.Sprintf("[Assistant tool call %s]: %s(%s)", tc.CallID, tc.Name, string(tc.RawArguments)))
			}
		case RoleTool:
			for _, tr := range msg.ToolResults {
				prefix := "[Tool Result]"
				if tr.IsError {
					prefix = "[Tool Error]"
				}
				userParts = append(userParts, prefix+": "+tr.Content)
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...), nil
}

// parseToolCalls extracts tool calls gollm embedded in the response text.
func (c *GollmClient) parseToolCalls(text string) []ToolCallFragment {
	start := strings.Index(text, `{"tool_calls"`)
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	var calls []ToolCallFragment
	for _, rc := range rawCalls {
		calls = append(calls, ToolCallFragment{
			CallID:       "call_" + uuid.New().String()[:8],
			Name:         rc.Name,
			RawArguments: rc.Arguments,
		})
	}
	return calls
}

// removeToolCallJSON strips parsed tool call JSON from the text.
func (c *GollmClient) removeToolCallJSON(text string, calls []ToolCallFragment) string {
	if len(calls) == 0 {
		return text
	}
	result := text
	for _, pattern := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = strings.TrimSpace(result[:idx])
		}
	}
	return result
}

// translateError classifies a gollm error into the client error hierarchy.
func (c *GollmClient) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: c.provider, StatusCode: 401,
		}}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: c.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: c.provider, StatusCode: 413,
		}}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: c.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		return &ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    c.provider,
			Retryable:   true,
		}
	}
}

// estimateTokens roughly counts request tokens from message text lengths.
func estimateTokens(req Request) int64 {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Text) / 4
		for _, tr := range msg.ToolResults {
			total += len(tr.Content) / 4
		}
	}
	if total == 0 {
		total = 10
	}
	return int64(total)
}
