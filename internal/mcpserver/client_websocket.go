package mcpserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"agentmux/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
)

// rpcRequest is an outgoing JSON-RPC 2.0 envelope. Notifications omit
// the id.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      string      `json:"id,omitempty"`
}

// rpcResponse is an incoming JSON-RPC 2.0 envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// WebSocketClient implements the MCPClient interface over a WebSocket
// connection. The mcp-go library has no WebSocket transport, so this
// client carries its own JSON-RPC framing: each request gets a unique
// id and a channel in the pending table, and a background reader
// routes responses back by id.
type WebSocketClient struct {
	params *WebSocketParams

	// initMu serializes Initialize so a concurrent caller never
	// observes a dialed but not-yet-handshaken session.
	initMu sync.Mutex

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *rpcResponse

	done chan struct{}
}

// NewWebSocketClient creates a new WebSocket-based MCP client.
func NewWebSocketClient(params *WebSocketParams) *WebSocketClient {
	return &WebSocketClient{
		params:  params,
		pending: make(map[string]chan *rpcResponse),
	}
}

// Initialize dials the server, starts the reader, and performs the
// protocol handshake.
func (c *WebSocketClient) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.IsConnected() {
		return nil
	}
	// Drop the remnants of a connection that failed mid-flight before
	// dialing a fresh one.
	c.Close()

	logging.Debug("WebSocketClient", "Dialing %s", c.params.URL)

	tlsConfig, err := c.buildTLSConfig()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.params.OpenTimeoutDuration(),
		TLSClientConfig:  tlsConfig,
		Subprotocols:     c.params.Subprotocols,
	}

	header := make(map[string][]string, len(c.params.Headers))
	for k, v := range c.params.Headers {
		header[k] = []string{v}
	}

	conn, _, err := dialer.DialContext(ctx, c.params.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.params.URL, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	if interval := c.params.PingIntervalDuration(); interval > 0 {
		go c.pingLoop(conn, done, interval)
	}

	var initResult mcp.InitializeResult
	initParams := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": "1.0.0",
		},
	}
	if err := c.callOn(ctx, conn, "initialize", initParams, &initResult); err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	if err := c.notifyOn(conn, "notifications/initialized", nil); err != nil {
		c.Close()
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	// The flag flips only after the handshake, so IsConnected and the
	// RPC surface never see a half-initialized session.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	logging.Debug("WebSocketClient", "WebSocket client initialized. Server: %s, Version: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return nil
}

func (c *WebSocketClient) buildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{}
	if !c.params.TLSVerify() {
		cfg.InsecureSkipVerify = true
	}
	if c.params.CAFile != "" {
		pem, err := os.ReadFile(c.params.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", c.params.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", c.params.CAFile)
		}
		cfg.RootCAs = pool
	}
	if c.params.ClientCert != "" && c.params.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.params.ClientCert, c.params.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// readLoop routes incoming responses to their pending channels by
// request id. It runs until the connection fails or is closed, then
// rejects everything still pending.
func (c *WebSocketClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				logging.Debug("WebSocketClient", "Read loop ended: %v", err)
			}
			c.markDisconnected(conn)
			c.failPending(fmt.Errorf("connection closed: %w", err))
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			logging.Warn("WebSocketClient", "Discarding unparseable message: %v", err)
			continue
		}
		if resp.ID == "" {
			// Server-initiated notification; nothing consumes these yet.
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			logging.Warn("WebSocketClient", "Dropping response for unknown request id %s", resp.ID)
			continue
		}
		ch <- &resp
	}
}

// pingLoop sends WebSocket-level pings to keep intermediaries from
// timing out an idle connection.
func (c *WebSocketClient) pingLoop(conn *websocket.Conn, done chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				logging.Debug("WebSocketClient", "Keepalive ping failed: %v", err)
				return
			}
		}
	}
}

func (c *WebSocketClient) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.connected = false
	}
}

// failPending rejects every in-flight request with the given error.
func (c *WebSocketClient) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *rpcResponse)
	c.pendingMu.Unlock()

	for id, ch := range pending {
		ch <- &rpcResponse{ID: id, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
}

// call sends a request on the established session. Send never
// reconnects implicitly: an unconnected client fails fast.
func (c *WebSocketClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return c.callOn(ctx, conn, method, params, result)
}

// callOn sends a request on a specific connection and blocks until the
// matching response arrives, the per-call timeout fires, or ctx is
// cancelled. On timeout the pending entry is removed so a late
// response cannot leak. Initialize uses it directly during the
// handshake, before the client is marked connected.
func (c *WebSocketClient) callOn(ctx context.Context, conn *websocket.Conn, method string, params interface{}, result interface{}) error {
	id := uuid.NewString()
	ch := make(chan *rpcResponse, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	timeout := c.params.CallTimeoutDuration()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s failed: %w", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("%s timed out after %s", method, timeout)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("%s cancelled: %w", method, ctx.Err())
	}
}

// notifyOn sends a request with no id on a specific connection; no
// response is expected.
func (c *WebSocketClient) notifyOn(conn *websocket.Conn, method string, params interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(req)
}

// Close cleanly shuts down the connection and rejects any in-flight
// requests.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	if !c.connected && c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.done
	c.conn = nil
	c.connected = false
	c.done = nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}

	var err error
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	}

	c.failPending(fmt.Errorf("connection closed"))
	return err
}

// IsConnected reports whether the channel is open and usable.
func (c *WebSocketClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// ListTools returns all available tools from the server.
func (c *WebSocketClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var result mcp.ListToolsResult
	if err := c.call(ctx, "tools/list", map[string]interface{}{}, &result); err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool executes a specific tool and returns the result.
func (c *WebSocketClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	params := mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	var raw json.RawMessage
	if err := c.call(ctx, "tools/call", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to call tool %q: %w", name, err)
	}
	// Content blocks are polymorphic, so the library's parser decodes
	// them rather than a plain unmarshal.
	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result of tool %q: %w", name, err)
	}
	return result, nil
}

// Ping checks if the server is responsive.
func (c *WebSocketClient) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}
