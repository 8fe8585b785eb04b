package mcpserver

import (
	"fmt"
	"time"
)

// TransportType identifies the wire transport used to reach an MCP server.
type TransportType string

const (
	TransportStdio          TransportType = "stdio"
	TransportStreamableHTTP TransportType = "streamable_http"
	TransportSSE            TransportType = "sse"
	TransportWebSocket      TransportType = "websocket"
)

// KnownTransportTypes lists every transport the client factory supports.
var KnownTransportTypes = []TransportType{
	TransportStdio,
	TransportStreamableHTTP,
	TransportSSE,
	TransportWebSocket,
}

func (t TransportType) valid() bool {
	for _, known := range KnownTransportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// StdioParams configures a subprocess-based MCP server.
type StdioParams struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
}

// HTTPParams configures a remote MCP server reached over streamable HTTP
// or SSE. Token, when set, is sent as a bearer Authorization header in
// addition to any explicit headers.
type HTTPParams struct {
	URL     string            `json:"url" yaml:"url"`
	Token   string            `json:"token,omitempty" yaml:"token,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// WebSocketParams configures a remote MCP server reached over a WebSocket.
// Timeouts are expressed in seconds in config files.
type WebSocketParams struct {
	URL          string            `json:"url" yaml:"url"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Subprotocols []string          `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty"`
	OpenTimeout  float64           `json:"open_timeout,omitempty" yaml:"open_timeout,omitempty"`
	PingInterval float64           `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	CallTimeout  float64           `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	VerifyTLS    *bool             `json:"verify_tls,omitempty" yaml:"verify_tls,omitempty"`
	CAFile       string            `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	ClientCert   string            `json:"client_cert,omitempty" yaml:"client_cert,omitempty"`
	ClientKey    string            `json:"client_key,omitempty" yaml:"client_key,omitempty"`
}

// OpenTimeoutDuration returns the handshake timeout, defaulting to 10s.
func (p *WebSocketParams) OpenTimeoutDuration() time.Duration {
	if p.OpenTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.OpenTimeout * float64(time.Second))
}

// PingIntervalDuration returns the keepalive ping interval; zero disables pings.
func (p *WebSocketParams) PingIntervalDuration() time.Duration {
	if p.PingInterval <= 0 {
		return 0
	}
	return time.Duration(p.PingInterval * float64(time.Second))
}

// CallTimeoutDuration returns the per-RPC deadline, defaulting to 10s.
func (p *WebSocketParams) CallTimeoutDuration() time.Duration {
	if p.CallTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.CallTimeout * float64(time.Second))
}

// TLSVerify reports whether server certificates should be verified.
// An absent flag means verify.
func (p *WebSocketParams) TLSVerify() bool {
	return p.VerifyTLS == nil || *p.VerifyTLS
}

// ServerConfig identifies one remote MCP server. Exactly one params block
// matching TransportType must be set; Validate enforces this. Configs are
// treated as immutable once stored.
type ServerConfig struct {
	ServerID       string        `json:"server_id" yaml:"server_id"`
	TransportType  TransportType `json:"transport_type" yaml:"transport_type"`
	Enabled        *bool         `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ToolNamePrefix string        `json:"tool_name_prefix,omitempty" yaml:"tool_name_prefix,omitempty"`

	StdioParams          *StdioParams     `json:"stdio_params,omitempty" yaml:"stdio_params,omitempty"`
	StreamableHTTPParams *HTTPParams      `json:"streamable_http_params,omitempty" yaml:"streamable_http_params,omitempty"`
	SSEParams            *HTTPParams      `json:"sse_params,omitempty" yaml:"sse_params,omitempty"`
	WebSocketParams      *WebSocketParams `json:"websocket_params,omitempty" yaml:"websocket_params,omitempty"`
}

// IsEnabled reports whether the server participates in discovery and
// session creation. An absent enabled field means enabled.
func (c *ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks structural invariants: a non-empty identifier, a known
// transport type, and the presence of exactly the params block that
// matches the transport type.
func (c *ServerConfig) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("server config is missing server_id")
	}
	if c.TransportType == "" {
		return fmt.Errorf("server %q: transport_type is required", c.ServerID)
	}
	if !c.TransportType.valid() {
		return fmt.Errorf("server %q: unknown transport_type %q (supported: %s, %s, %s, %s)",
			c.ServerID, c.TransportType,
			TransportStdio, TransportStreamableHTTP, TransportSSE, TransportWebSocket)
	}

	type block struct {
		transport TransportType
		present   bool
	}
	blocks := []block{
		{TransportStdio, c.StdioParams != nil},
		{TransportStreamableHTTP, c.StreamableHTTPParams != nil},
		{TransportSSE, c.SSEParams != nil},
		{TransportWebSocket, c.WebSocketParams != nil},
	}
	for _, b := range blocks {
		if b.transport == c.TransportType && !b.present {
			return fmt.Errorf("server %q: %s_params is required for transport_type %q",
				c.ServerID, c.TransportType, c.TransportType)
		}
		if b.transport != c.TransportType && b.present {
			return fmt.Errorf("server %q: %s_params does not match transport_type %q",
				c.ServerID, b.transport, c.TransportType)
		}
	}

	switch c.TransportType {
	case TransportStdio:
		if c.StdioParams.Command == "" {
			return fmt.Errorf("server %q: stdio_params.command is required", c.ServerID)
		}
	case TransportStreamableHTTP:
		if c.StreamableHTTPParams.URL == "" {
			return fmt.Errorf("server %q: streamable_http_params.url is required", c.ServerID)
		}
	case TransportSSE:
		if c.SSEParams.URL == "" {
			return fmt.Errorf("server %q: sse_params.url is required", c.ServerID)
		}
	case TransportWebSocket:
		if c.WebSocketParams.URL == "" {
			return fmt.Errorf("server %q: websocket_params.url is required", c.ServerID)
		}
	}

	return nil
}
