package mcpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileSingleObject(t *testing.T) {
	path := writeTempConfig(t, "server.json", `{
		"server_id": "local",
		"transport_type": "stdio",
		"stdio_params": {"command": "echo", "args": ["hello"]}
	}`)

	store := NewStore()
	configs, err := store.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg, ok := store.Get("local")
	require.True(t, ok)
	assert.Equal(t, TransportStdio, cfg.TransportType)
	assert.Equal(t, "echo", cfg.StdioParams.Command)
	assert.Equal(t, []string{"hello"}, cfg.StdioParams.Args)
	assert.True(t, cfg.IsEnabled())
}

func TestLoadFileArray(t *testing.T) {
	path := writeTempConfig(t, "servers.json", `[
		{"server_id": "a", "transport_type": "stdio", "stdio_params": {"command": "echo"}},
		{"server_id": "b", "transport_type": "sse", "sse_params": {"url": "http://localhost/sse"}}
	]`)

	store := NewStore()
	configs, err := store.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, configs, 2)

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ServerID)
	assert.Equal(t, "b", all[1].ServerID)
}

func TestLoadFileMapOuterKeyWins(t *testing.T) {
	path := writeTempConfig(t, "servers.json", `{
		"outer": {
			"server_id": "inner",
			"transport_type": "streamable_http",
			"streamable_http_params": {"url": "http://localhost:8080/mcp"}
		}
	}`)

	store := NewStore()
	configs, err := store.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "outer", configs[0].ServerID)

	_, ok := store.Get("inner")
	assert.False(t, ok, "inner identifier must not be registered")
	_, ok = store.Get("outer")
	assert.True(t, ok)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeTempConfig(t, "servers.yaml", `
socket:
  transport_type: websocket
  websocket_params:
    url: ws://localhost:9000
    call_timeout: 5
`)

	store := NewStore()
	configs, err := store.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "socket", configs[0].ServerID)
	assert.Equal(t, "ws://localhost:9000", configs[0].WebSocketParams.URL)
}

func TestLoadFileServerNameAlias(t *testing.T) {
	path := writeTempConfig(t, "server.json", `{
		"server_name": "aliased",
		"transport_type": "stdio",
		"stdio_params": {"command": "cat"}
	}`)

	store := NewStore()
	configs, err := store.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "aliased", configs[0].ServerID)
}

func TestLoadFileInvalidEntryStoresNothing(t *testing.T) {
	path := writeTempConfig(t, "servers.json", `[
		{"server_id": "good", "transport_type": "stdio", "stdio_params": {"command": "echo"}},
		{"server_id": "bad", "transport_type": "stdio"}
	]`)

	store := NewStore()
	_, err := store.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdio_params is required")

	// Validation failures leave the store untouched, including the
	// entries that were individually valid.
	assert.Empty(t, store.All())
}

func TestLoadFileMissingFile(t *testing.T) {
	store := NewStore()
	_, err := store.LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadFileMalformedJSON(t *testing.T) {
	path := writeTempConfig(t, "broken.json", `{"server_id": `)
	store := NewStore()
	_, err := store.LoadFile(path)
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestAddOverwritesExisting(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Add(&ServerConfig{
		ServerID:      "s",
		TransportType: TransportStdio,
		StdioParams:   &StdioParams{Command: "echo"},
	}))
	require.NoError(t, store.Add(&ServerConfig{
		ServerID:      "s",
		TransportType: TransportSSE,
		SSEParams:     &HTTPParams{URL: "http://localhost/sse"},
	}))

	cfg, ok := store.Get("s")
	require.True(t, ok)
	assert.Equal(t, TransportSSE, cfg.TransportType)
	assert.Len(t, store.All(), 1)
}

func TestAddRejectsInvalid(t *testing.T) {
	store := NewStore()
	err := store.Add(&ServerConfig{ServerID: "s", TransportType: "bogus"})
	assert.ErrorContains(t, err, "unknown transport_type")
	assert.Empty(t, store.All())
}

func TestClear(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Add(&ServerConfig{
		ServerID:      "s",
		TransportType: TransportStdio,
		StdioParams:   &StdioParams{Command: "echo"},
	}))
	store.Clear()
	assert.Empty(t, store.All())
}
