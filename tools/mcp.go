package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/modelclient"
)

// Connector delegates a tool call to a named external MCP server and
// returns its textual result. The round trip has its own timeout and
// error surface, independent of the sandbox path.
type Connector interface {
	Invoke(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

// McpConnector manages stdio connections to configured MCP servers,
// dialing lazily on first use and reusing the connection afterwards.
type McpConnector struct {
	servers map[string]config.MCPServer
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewMcpConnector creates a connector for the configured servers.
func NewMcpConnector(servers map[string]config.MCPServer, timeout time.Duration, log *zap.Logger) *McpConnector {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &McpConnector{
		servers: servers,
		timeout: timeout,
		log:     log,
		clients: make(map[string]*client.Client),
	}
}

// Invoke forwards the call to the named server and flattens its text
// content into a single result string.
func (c *McpConnector) Invoke(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	cli, err := c.connect(ctx, server)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := cli.CallTool(ctx, req)
	if err != nil {
		c.forget(server)
		return "", &ExecutionError{
			Tool:   server + mcpSeparator + tool,
			Detail: fmt.Sprintf("MCP call failed: %v", err),
		}
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return "", &ExecutionError{
			Tool:   server + mcpSeparator + tool,
			Detail: "server reported an error",
			Output: text,
		}
	}
	return text, nil
}

// ListTools enumerates the tools of every configured server, with names
// qualified as server__tool so calls route back to the right server.
// Servers that cannot be reached are skipped with a warning.
func (c *McpConnector) ListTools(ctx context.Context) []modelclient.ToolDefinition {
	var defs []modelclient.ToolDefinition
	for _, server := range c.Servers() {
		cli, err := c.connect(ctx, server)
		if err != nil {
			c.log.Warn("skipping unreachable MCP server", zap.String("server", server), zap.Error(err))
			continue
		}
		res, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			c.log.Warn("failed to list MCP tools", zap.String("server", server), zap.Error(err))
			c.forget(server)
			continue
		}
		for _, t := range res.Tools {
			params := map[string]interface{}{"type": "object"}
			if raw, err := json.Marshal(t.InputSchema); err == nil {
				var m map[string]interface{}
				if json.Unmarshal(raw, &m) == nil {
					params = m
				}
			}
			defs = append(defs, modelclient.ToolDefinition{
				Name:        server + mcpSeparator + t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
	}
	return defs
}

// Close shuts down all live server connections.
func (c *McpConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, cli := range c.clients {
		if err := cli.Close(); err != nil {
			c.log.Warn("failed to close MCP client", zap.String("server", name), zap.Error(err))
		}
		delete(c.clients, name)
	}
}

// Servers lists the configured server names, sorted.
func (c *McpConnector) Servers() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *McpConnector) connect(ctx context.Context, server string) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cli, ok := c.clients[server]; ok {
		return cli, nil
	}

	cfg, ok := c.servers[server]
	if !ok {
		return nil, &ExecutionError{
			Tool:   server,
			Detail: fmt.Sprintf("unknown MCP server %q", server),
		}
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	cli, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, &ExecutionError{
			Tool:   server,
			Detail: fmt.Sprintf("failed to start MCP server %q: %v", server, err),
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "conductor",
		Version: "1.0.0",
	}
	if _, err := cli.Initialize(initCtx, initReq); err != nil {
		_ = cli.Close()
		return nil, &ExecutionError{
			Tool:   server,
			Detail: fmt.Sprintf("failed to initialize MCP server %q: %v", server, err),
		}
	}

	c.log.Info("connected to MCP server",
		zap.String("server", server),
		zap.String("command", cfg.Command))
	c.clients[server] = cli
	return cli, nil
}

// forget drops a connection after a failed call so the next invocation
// redials.
func (c *McpConnector) forget(server string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok := c.clients[server]; ok {
		_ = cli.Close()
		delete(c.clients, server)
	}
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
