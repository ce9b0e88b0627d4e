package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeShellRequestValid(t *testing.T) {
	raw := json.RawMessage(`{"command": ["echo", "hello"], "workdir": "/tmp", "timeout_ms": 5000, "justification": "greet"}`)
	req, err := DecodeShellRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hello"}, req.Command)
	assert.Equal(t, "/tmp", req.Workdir)
	assert.Equal(t, 5000, req.TimeoutMs)
	assert.Equal(t, "greet", req.Justification)
}

func TestDecodeShellRequestStringCommand(t *testing.T) {
	raw := json.RawMessage(`{"command": "echo hello"}`)
	req, err := DecodeShellRequest(raw)
	require.Error(t, err)
	assert.Nil(t, req)

	decodeErr, ok := err.(*DecodeError)
	require.True(t, ok, "expected *DecodeError, got %T", err)
	assert.Contains(t, decodeErr.Error(), "array of strings")
	// The corrective example shows the model what shape to use next time.
	assert.Contains(t, decodeErr.Error(), `["bash", "-lc", "echo hello"]`)
}

func TestDecodeShellRequestMissingCommand(t *testing.T) {
	_, err := DecodeShellRequest(json.RawMessage(`{"workdir": "/tmp"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}

func TestDecodeShellRequestEmptyCommand(t *testing.T) {
	_, err := DecodeShellRequest(json.RawMessage(`{"command": []}`))
	require.Error(t, err)
}

func TestDecodeShellRequestInvalidJSON(t *testing.T) {
	_, err := DecodeShellRequest(json.RawMessage(`{not json`))
	require.Error(t, err)
	_, ok := err.(*DecodeError)
	assert.True(t, ok)
}

func TestShellRequestTimeoutClamp(t *testing.T) {
	def := 10 * time.Second
	max := time.Minute

	tests := []struct {
		name      string
		timeoutMs int
		want      time.Duration
	}{
		{"zero uses default", 0, def},
		{"negative uses default", -5, def},
		{"within bounds", 30000, 30 * time.Second},
		{"above max clamps", 600000, max},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ShellRequest{TimeoutMs: tt.timeoutMs}
			assert.Equal(t, tt.want, req.Timeout(def, max))
		})
	}
}
