package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"
	"agentmux/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is an in-memory MCPClient serving canned tools.
type fakeSession struct {
	connected bool
	tools     []mcp.Tool
	listErr   error
	calls     []string
	callText  string
	callErr   error
}

func (f *fakeSession) Initialize(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeSession) Close() error {
	f.connected = false
	return nil
}

func (f *fakeSession) IsConnected() bool { return f.connected }

func (f *fakeSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, name)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: f.callText}},
	}, nil
}

func (f *fakeSession) Ping(ctx context.Context) error { return nil }

func remoteTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
			Required: []string{"query"},
		},
	}
}

func stdioConfig(id, prefix string) *mcpserver.ServerConfig {
	return &mcpserver.ServerConfig{
		ServerID:       id,
		TransportType:  mcpserver.TransportStdio,
		ToolNamePrefix: prefix,
		StdioParams:    &mcpserver.StdioParams{Command: "echo"},
	}
}

type harness struct {
	store     *mcpserver.Store
	manager   *mcpserver.Manager
	registry  *tools.Registry
	registrar *Registrar
	sessions  map[string]*fakeSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    mcpserver.NewStore(),
		registry: tools.NewRegistry(),
		sessions: make(map[string]*fakeSession),
	}
	h.manager = mcpserver.NewManagerWithFactory(h.store, func(cfg *mcpserver.ServerConfig) (mcpserver.MCPClient, error) {
		session, ok := h.sessions[cfg.ServerID]
		if !ok {
			return nil, errors.New("no fake session for " + cfg.ServerID)
		}
		return session, nil
	})
	h.registrar = NewRegistrar(h.store, h.manager, h.registry)
	return h
}

func TestDiscoverServerRegistersPrefixedTools(t *testing.T) {
	h := newHarness(t)
	h.sessions["s1"] = &fakeSession{tools: []mcp.Tool{
		remoteTool("search", "Search things"),
		remoteTool("fetch", "Fetch a document"),
	}}

	err := h.registrar.DiscoverServer(context.Background(), stdioConfig("s1", "s1_"))
	require.NoError(t, err)

	assert.Equal(t, []string{"s1_fetch", "s1_search"}, h.registrar.RegisteredFor("s1"))

	def, ok := h.registry.Get("s1_search")
	require.True(t, ok)
	assert.Equal(t, "Search things", def.Description)

	param, ok := def.Schema.Get("query")
	require.True(t, ok)
	assert.Equal(t, tools.TypeString, param.Type)
	assert.True(t, param.Required)

	// The unprefixed name is not registered.
	_, ok = h.registry.Get("search")
	assert.False(t, ok)
}

func TestDiscoverServerRediscoveryPurgesStale(t *testing.T) {
	h := newHarness(t)
	session := &fakeSession{tools: []mcp.Tool{
		remoteTool("search", "Search"),
		remoteTool("fetch", "Fetch"),
	}}
	h.sessions["s1"] = session

	cfg := stdioConfig("s1", "s1_")
	require.NoError(t, h.registrar.DiscoverServer(context.Background(), cfg))
	require.Len(t, h.registrar.RegisteredFor("s1"), 2)

	// The server drops one tool; re-discovery must drop its registration.
	session.tools = []mcp.Tool{remoteTool("search", "Search")}
	require.NoError(t, h.registrar.DiscoverServer(context.Background(), cfg))

	assert.Equal(t, []string{"s1_search"}, h.registrar.RegisteredFor("s1"))
	_, ok := h.registry.Get("s1_fetch")
	assert.False(t, ok, "stale registration must be purged")
}

func TestDiscoverAllSkipsFailingServer(t *testing.T) {
	h := newHarness(t)
	h.sessions["good"] = &fakeSession{tools: []mcp.Tool{remoteTool("ok", "works")}}
	h.sessions["bad"] = &fakeSession{listErr: errors.New("server exploded")}

	require.NoError(t, h.store.Add(stdioConfig("good", "good_")))
	require.NoError(t, h.store.Add(stdioConfig("bad", "bad_")))

	succeeded := h.registrar.DiscoverAll(context.Background())
	assert.Equal(t, 1, succeeded)

	_, ok := h.registry.Get("good_ok")
	assert.True(t, ok, "healthy server must register despite the failing one")
	assert.Empty(t, h.registrar.RegisteredFor("bad"))
}

func TestDiscoverAllSkipsDisabledServer(t *testing.T) {
	h := newHarness(t)
	h.sessions["off"] = &fakeSession{tools: []mcp.Tool{remoteTool("hidden", "x")}}

	cfg := stdioConfig("off", "off_")
	disabled := false
	cfg.Enabled = &disabled
	require.NoError(t, h.store.Add(cfg))

	succeeded := h.registrar.DiscoverAll(context.Background())
	assert.Zero(t, succeeded)
	assert.Empty(t, h.registrar.AllRegistered())
	assert.False(t, h.manager.HasSession("off"), "disabled server must not get a session")
}

func TestDiscoverAllDoesNotRewriteStoredConfigs(t *testing.T) {
	h := newHarness(t)
	h.sessions["s1"] = &fakeSession{tools: []mcp.Tool{remoteTool("search", "Search")}}
	require.NoError(t, h.store.Add(stdioConfig("s1", "s1_")))

	var buf bytes.Buffer
	logging.Init(logging.LevelWarn, &buf)
	defer logging.Init(logging.LevelInfo, nil)

	require.Equal(t, 1, h.registrar.DiscoverAll(context.Background()))
	require.Equal(t, 1, h.registrar.DiscoverAll(context.Background()))

	assert.NotContains(t, buf.String(), "Overwriting",
		"repeated discovery over stored configs must not re-add them")

	// A genuinely new config object for the same server still overwrites.
	require.NoError(t, h.registrar.DiscoverServer(context.Background(), stdioConfig("s1", "s1_")))
	assert.Contains(t, buf.String(), "Overwriting")
}

func TestDiscoverAllPurgesRemovedServers(t *testing.T) {
	h := newHarness(t)
	h.sessions["s1"] = &fakeSession{tools: []mcp.Tool{remoteTool("search", "Search")}}
	require.NoError(t, h.store.Add(stdioConfig("s1", "s1_")))

	require.Equal(t, 1, h.registrar.DiscoverAll(context.Background()))
	require.Equal(t, []string{"s1_search"}, h.registrar.RegisteredFor("s1"))

	// The server disappears from the config; full discovery must drop
	// its tools and session.
	h.store.Clear()
	h.registrar.DiscoverAll(context.Background())

	assert.Empty(t, h.registrar.AllRegistered())
	_, ok := h.registry.Get("s1_search")
	assert.False(t, ok)
	assert.False(t, h.manager.HasSession("s1"))
}

func TestUnregisterServer(t *testing.T) {
	h := newHarness(t)
	session := &fakeSession{tools: []mcp.Tool{remoteTool("search", "Search")}}
	h.sessions["s1"] = session

	require.NoError(t, h.registrar.DiscoverServer(context.Background(), stdioConfig("s1", "s1_")))
	require.True(t, h.manager.HasSession("s1"))

	h.registrar.UnregisterServer("s1")

	assert.Empty(t, h.registrar.RegisteredFor("s1"))
	_, ok := h.registry.Get("s1_search")
	assert.False(t, ok)
	assert.False(t, h.manager.HasSession("s1"))
	assert.False(t, session.connected, "session must be closed on unregister")
}

func TestRemoteToolExecute(t *testing.T) {
	h := newHarness(t)
	session := &fakeSession{
		tools:    []mcp.Tool{remoteTool("search", "Search")},
		callText: "found it",
	}
	h.sessions["s1"] = session

	require.NoError(t, h.registrar.DiscoverServer(context.Background(), stdioConfig("s1", "s1_")))

	tool, err := h.registry.Create("s1_search")
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "found it", result)
	assert.Equal(t, []string{"search"}, session.calls, "execution must use the unprefixed remote name")
}

func TestRemoteToolExecuteErrorAttribution(t *testing.T) {
	h := newHarness(t)
	session := &fakeSession{
		tools:   []mcp.Tool{remoteTool("search", "Search")},
		callErr: errors.New("backend unavailable"),
	}
	h.sessions["s1"] = session

	require.NoError(t, h.registrar.DiscoverServer(context.Background(), stdioConfig("s1", "s1_")))

	tool, err := h.registry.Create("s1_search")
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s1")
	assert.Contains(t, err.Error(), "search")
	assert.Contains(t, err.Error(), "backend unavailable")
}
