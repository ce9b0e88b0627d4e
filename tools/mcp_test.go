package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martinemde/conductor/config"
)

func TestMcpConnectorServersSorted(t *testing.T) {
	c := NewMcpConnector(map[string]config.MCPServer{
		"zeta":  {Command: "mcp-zeta"},
		"alpha": {Command: "mcp-alpha"},
		"mid":   {Command: "mcp-mid"},
	}, time.Second, zap.NewNop())
	defer c.Close()

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, c.Servers())
}

func TestMcpConnectorUnknownServer(t *testing.T) {
	c := NewMcpConnector(nil, time.Second, zap.NewNop())
	defer c.Close()

	_, err := c.Invoke(context.Background(), "ghost", "query", nil)
	require.Error(t, err)
	execErr, ok := err.(*ExecutionError)
	require.True(t, ok)
	assert.Contains(t, execErr.Detail, `unknown MCP server "ghost"`)
}

func TestMcpConnectorListToolsSkipsUnreachable(t *testing.T) {
	// A server whose command does not exist must be skipped, not fail the
	// whole enumeration.
	c := NewMcpConnector(map[string]config.MCPServer{
		"broken": {Command: "/nonexistent/mcp-server"},
	}, time.Second, zap.NewNop())
	defer c.Close()

	defs := c.ListTools(context.Background())
	assert.Empty(t, defs)
}
