package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// protocolVersion is the MCP protocol revision negotiated during the
// initialize handshake.
const protocolVersion = "2024-11-05"

// clientName identifies this framework in the MCP handshake.
const clientName = "agentmux"

// ErrNotConnected is returned by client operations invoked before
// Initialize or after Close. Send never attempts an implicit reconnect;
// reconnecting is an explicit Initialize call by the owner.
var ErrNotConnected = errors.New("client not connected")

// MCPClient defines the contract every transport implementation
// satisfies. All transports (stdio, streamable-http, sse, websocket)
// implement this interface, enabling polymorphic usage and easier
// testing with fakes.
type MCPClient interface {
	// Initialize establishes the connection and performs the protocol
	// handshake. It is idempotent: initializing a connected client is a
	// no-op.
	Initialize(ctx context.Context) error
	// Close cleanly shuts down the connection. It is idempotent.
	Close() error
	// IsConnected reports whether the channel is open and usable.
	IsConnected() bool
	// ListTools returns all available tools from the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool executes a specific tool and returns the result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error
}

// Compile-time interface compliance checks
var (
	_ MCPClient = (*StdioClient)(nil)
	_ MCPClient = (*SSEClient)(nil)
	_ MCPClient = (*StreamableHTTPClient)(nil)
	_ MCPClient = (*WebSocketClient)(nil)
)

// baseMCPClient provides the MCP operations shared by the transports
// that delegate framing and request correlation to the mcp-go client
// library (stdio, sse, streamable-http).
type baseMCPClient struct {
	client    client.MCPClient
	mu        sync.RWMutex
	connected bool
}

// checkConnected verifies the client is connected and returns an error if not.
// Caller must hold at least a read lock on mu.
func (b *baseMCPClient) checkConnected() error {
	if !b.connected || b.client == nil {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the underlying client is usable.
func (b *baseMCPClient) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && b.client != nil
}

// closeClient performs the common close logic.
func (b *baseMCPClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.connected = false
	b.client = nil

	return err
}

func (b *baseMCPClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return result.Tools, nil
}

func (b *baseMCPClient) callTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %q: %w", name, err)
	}

	return result, nil
}

func (b *baseMCPClient) ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return err
	}

	return b.client.Ping(ctx)
}

// newInitializeRequest builds the handshake request shared by all
// library-backed transports.
func newInitializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
}

// mergeAuthHeaders copies headers and folds an optional bearer token
// into the Authorization header. An explicit Authorization header wins
// over the token.
func mergeAuthHeaders(headers map[string]string, token string) map[string]string {
	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	if token != "" {
		if _, ok := merged["Authorization"]; !ok {
			merged["Authorization"] = "Bearer " + token
		}
	}
	return merged
}
