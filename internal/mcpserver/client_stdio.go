package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"agentmux/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultStdioInitTimeout bounds subprocess startup plus the MCP
// handshake when the caller's context carries no deadline.
const DefaultStdioInitTimeout = 10 * time.Second

// StdioClient implements the MCPClient interface using stdio transport.
// It manages a local subprocess that communicates via stdin/stdout.
type StdioClient struct {
	baseMCPClient
	command string
	args    []string
	env     map[string]string
	cwd     string
}

// NewStdioClient creates a new stdio-based MCP client.
func NewStdioClient(params *StdioParams) *StdioClient {
	return &StdioClient{
		command: params.Command,
		args:    params.Args,
		env:     params.Env,
		cwd:     params.Cwd,
	}
}

// commandFunc builds the server subprocess, running it in the
// configured working directory. The transport wires up the stdio pipes
// on the returned command itself.
func (c *StdioClient) commandFunc() transport.CommandFunc {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = append(os.Environ(), env...)
		if c.cwd != "" {
			cmd.Dir = c.cwd
		}
		return cmd, nil
	}
}

// Initialize spawns the subprocess and performs the protocol handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StdioClient", "Spawning %s %v", c.command, c.args)

	envStrings := make([]string, 0, len(c.env))
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(c.command, envStrings, c.args,
		transport.WithCommandFunc(c.commandFunc()))
	if err != nil {
		return fmt.Errorf("failed to spawn stdio client: %w", err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultStdioInitTimeout)
		defer cancel()
	}

	initResult, err := mcpClient.Initialize(initCtx, newInitializeRequest())
	if err != nil {
		logging.Error("StdioClient", err, "Failed to initialize MCP protocol for %s", c.command)
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("StdioClient", "Error closing failed client for %s: %v", c.command, closeErr)
		}
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	if initResult.Capabilities.Tools != nil {
		logging.Debug("StdioClient", "Server %s supports tools", c.command)
	}

	return nil
}

// Close cleanly shuts down the client connection and the subprocess.
func (c *StdioClient) Close() error {
	return c.closeClient()
}

// ListTools returns all available tools from the server.
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.listTools(ctx)
}

// CallTool executes a specific tool and returns the result.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

// Ping checks if the server is responsive.
func (c *StdioClient) Ping(ctx context.Context) error {
	return c.ping(ctx)
}
