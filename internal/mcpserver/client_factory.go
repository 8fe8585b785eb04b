package mcpserver

import (
	"fmt"
)

// ClientFactory builds an unconnected client for a server config. The
// manager uses it to create sessions; tests substitute fakes.
type ClientFactory func(cfg *ServerConfig) (MCPClient, error)

// NewClientFromConfig creates the appropriate MCP client for the
// config's transport type. The returned client is not yet connected;
// the caller must invoke Initialize.
func NewClientFromConfig(cfg *ServerConfig) (MCPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.TransportType {
	case TransportStdio:
		return NewStdioClient(cfg.StdioParams), nil
	case TransportStreamableHTTP:
		return NewStreamableHTTPClient(cfg.StreamableHTTPParams), nil
	case TransportSSE:
		return NewSSEClient(cfg.SSEParams), nil
	case TransportWebSocket:
		return NewWebSocketClient(cfg.WebSocketParams), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.TransportType)
	}
}
