// Package bridge connects remote MCP servers to the tool registry: it
// discovers each server's tools, maps their schemas, and registers
// prefixed wrappers that proxy execution through the session manager.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"

	"github.com/mark3labs/mcp-go/mcp"
)

// RemoteTool proxies a single remote MCP tool. Execution resolves the
// server's session through the manager at call time, so a session
// established after registration is picked up transparently.
type RemoteTool struct {
	serverID    string
	remoteName  string
	name        string
	description string
	schema      tools.ParameterSchema
	manager     *mcpserver.Manager
}

// Name returns the registered (prefixed) tool name.
func (t *RemoteTool) Name() string { return t.name }

// Description returns the remote tool's description.
func (t *RemoteTool) Description() string { return t.description }

// Schema returns the mapped parameter schema.
func (t *RemoteTool) Schema() tools.ParameterSchema { return t.schema }

// ServerID returns the id of the server this tool belongs to.
func (t *RemoteTool) ServerID() string { return t.serverID }

// RemoteName returns the tool's unprefixed name on the remote server.
func (t *RemoteTool) RemoteName() string { return t.remoteName }

// Execute calls the remote tool through the server's session and
// flattens the result content into text. Errors carry the server id
// and tool name so failures in multi-server setups stay attributable.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	session, err := t.manager.Session(ctx, t.serverID)
	if err != nil {
		return "", fmt.Errorf("server %s: tool %s: %w", t.serverID, t.remoteName, err)
	}

	result, err := session.CallTool(ctx, t.remoteName, args)
	if err != nil {
		return "", fmt.Errorf("server %s: tool %s: %w", t.serverID, t.remoteName, err)
	}

	if result.IsError {
		return "", fmt.Errorf("server %s: tool %s: %s", t.serverID, t.remoteName, flattenContent(result.Content))
	}

	return flattenContent(result.Content), nil
}

// flattenContent renders MCP result content as text. Text blocks pass
// through; anything else is JSON-encoded so no content is silently
// dropped.
func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		default:
			encoded, err := json.Marshal(item)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%v", item))
				continue
			}
			parts = append(parts, string(encoded))
		}
	}
	return strings.Join(parts, "\n")
}
