package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/martinemde/conductor/modelclient"
)

func TestFromFragment(t *testing.T) {
	tests := []struct {
		name string
		frag modelclient.ToolCallFragment
		want Call
	}{
		{
			"function tool",
			modelclient.ToolCallFragment{CallID: "c1", Name: "shell", RawArguments: json.RawMessage(`{}`)},
			Call{CallID: "c1", Kind: KindFunction, Name: "shell", RawArguments: json.RawMessage(`{}`)},
		},
		{
			"provider-native shell",
			modelclient.ToolCallFragment{CallID: "c2", Name: "shell", LocalShell: true},
			Call{CallID: "c2", Kind: KindLocalShell, Name: "shell"},
		},
		{
			"custom payload",
			modelclient.ToolCallFragment{CallID: "c3", Name: "apply_patch", Custom: true, RawArguments: json.RawMessage("*** Begin Patch")},
			Call{CallID: "c3", Kind: KindCustom, Name: "apply_patch", RawArguments: json.RawMessage("*** Begin Patch")},
		},
		{
			"mcp qualified name",
			modelclient.ToolCallFragment{CallID: "c4", Name: "db__query"},
			Call{CallID: "c4", Kind: KindMcp, Name: "db__query", Server: "db", Tool: "query"},
		},
		{
			"mcp tool name with extra separator",
			modelclient.ToolCallFragment{CallID: "c5", Name: "db__run__report"},
			Call{CallID: "c5", Kind: KindMcp, Name: "db__run__report", Server: "db", Tool: "run__report"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromFragment(tt.frag))
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateDenied.Terminal())
	assert.False(t, StateParsed.Terminal())
	assert.False(t, StatePendingApproval.Terminal())
	assert.False(t, StateExecuting.Terminal())
	assert.False(t, StateRetrying.Terminal())
}
