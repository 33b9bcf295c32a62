package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/config"
)

// mcpCallTimeout bounds one MCP tool execution.
const mcpCallTimeout = 30 * time.Second

// mcpClient abstracts the MCP client for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type mcpServerConn struct {
	name   string
	client mcpClient
}

// MCPBridge connects to external MCP servers and exposes their tools as
// domain.Tool instances.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

// NewMCPBridge connects to every configured server and discovers its tools.
// A single server failing discovery is skipped; all servers failing is an
// error.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}

	for _, srv := range servers {
		conn, err := b.connect(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.discover(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}
	return b, nil
}

// newMCPBridgeWithClients injects pre-built clients, for tests.
func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discover(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MCPBridge) connect(ctx context.Context, srv config.MCPServer) (*mcpServerConn, error) {
	var c mcpClient
	var err error

	switch srv.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		httpClient := mcpclient.NewClient(t)
		if err = httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "ensemble",
		Version: "1.0.0",
	}
	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	b.logger.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)
	return &mcpServerConn{name: srv.Name, client: c}, nil
}

func (b *MCPBridge) discover(ctx context.Context) error {
	var errs []string
	ok := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp discovery failed, skipping server",
				"server", srv.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}
		for _, t := range result.Tools {
			b.tools = append(b.tools, newMCPTool(srv.name, srv.client, t, b.logger))
		}
		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
		ok++
	}

	if ok == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tools returns all discovered MCP tools.
func (b *MCPBridge) Tools() []domain.Tool { return b.tools }

// Close shuts down every server connection.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// mcpTool wraps one remote MCP tool as a domain.Tool. Names are prefixed
// with the server so two servers exposing the same tool cannot collide.
type mcpTool struct {
	serverName string
	client     mcpClient
	tool       mcp.Tool
	fullName   string
	logger     *slog.Logger
}

func newMCPTool(serverName string, client mcpClient, t mcp.Tool, logger *slog.Logger) *mcpTool {
	return &mcpTool{
		serverName: serverName,
		client:     client,
		tool:       t,
		fullName:   fmt.Sprintf("mcp_%s_%s", sanitizeName(serverName), sanitizeName(t.Name)),
		logger:     logger,
	}
}

func (a *mcpTool) Name() string { return a.fullName }

func (a *mcpTool) Description() string {
	if a.tool.Description != "" {
		return a.tool.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", a.tool.Name, a.serverName)
}

func (a *mcpTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if a.tool.InputSchema.Properties != nil || a.tool.InputSchema.Required != nil {
		if data, err := json.Marshal(a.tool.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{
		Name:        a.fullName,
		Description: a.Description(),
		Parameters:  params,
	}
}

func (a *mcpTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]interface{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.tool.Name
	callReq.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		return &domain.ToolResult{
			Content: fmt.Sprintf("MCP tool error: %v", err),
			IsError: true,
		}, nil
	}

	return &domain.ToolResult{
		Content: extractMCPContent(result),
		IsError: result.IsError,
	}, nil
}

// extractMCPContent flattens an MCP result to text.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters that are not valid in tool names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// envSlice converts an env map to KEY=VALUE form.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

var _ domain.Tool = (*mcpTool)(nil)
