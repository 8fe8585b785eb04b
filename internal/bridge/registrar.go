package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"
	"agentmux/pkg/logging"
)

// Registrar discovers tools on configured MCP servers and keeps the
// tool registry in sync with them. Registered names are tracked per
// server so re-discovery and unregistration only touch the names the
// server contributed.
type Registrar struct {
	store    *mcpserver.Store
	manager  *mcpserver.Manager
	registry *tools.Registry

	mu       sync.Mutex
	byServer map[string][]string
}

// NewRegistrar creates a registrar wiring the config store, session
// manager, and tool registry together.
func NewRegistrar(store *mcpserver.Store, manager *mcpserver.Manager, registry *tools.Registry) *Registrar {
	return &Registrar{
		store:    store,
		manager:  manager,
		registry: registry,
		byServer: make(map[string][]string),
	}
}

// DiscoverAll discovers and registers tools from every enabled server
// in the store. A server that fails to connect or list tools is logged
// and skipped; its failure never blocks the others. Disabled servers
// have their registrations purged. Returns the number of servers that
// registered successfully.
func (r *Registrar) DiscoverAll(ctx context.Context) int {
	configs := r.store.All()

	// Purge registrations from servers that left the config entirely.
	known := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		known[cfg.ServerID] = true
	}
	r.mu.Lock()
	var removed []string
	for serverID := range r.byServer {
		if !known[serverID] {
			removed = append(removed, serverID)
		}
	}
	r.mu.Unlock()
	for _, serverID := range removed {
		r.UnregisterServer(serverID)
	}

	succeeded := 0
	for _, cfg := range configs {
		if !cfg.IsEnabled() {
			r.UnregisterServer(cfg.ServerID)
			logging.Debug("Registrar", "Skipping disabled server %s", cfg.ServerID)
			continue
		}
		if err := r.DiscoverServer(ctx, cfg); err != nil {
			logging.Error("Registrar", err, "Failed to discover tools from server %s", cfg.ServerID)
			continue
		}
		succeeded++
	}
	return succeeded
}

// DiscoverServer connects to one server, lists its tools, and
// registers a prefixed wrapper for each. Previous registrations for
// the server are replaced, so re-discovery is idempotent and stale
// names disappear.
func (r *Registrar) DiscoverServer(ctx context.Context, cfg *mcpserver.ServerConfig) error {
	// Store the config unless it is the store's own entry, so full
	// discovery over stored configs does not re-add (and warn about)
	// every server on each cycle.
	if existing, ok := r.store.Get(cfg.ServerID); !ok || existing != cfg {
		if err := r.store.Add(cfg); err != nil {
			return err
		}
	}
	if !cfg.IsEnabled() {
		r.UnregisterServer(cfg.ServerID)
		return fmt.Errorf("%w: %s", mcpserver.ErrServerDisabled, cfg.ServerID)
	}

	session, err := r.manager.Session(ctx, cfg.ServerID)
	if err != nil {
		return err
	}

	remoteTools, err := session.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools on %s: %w", cfg.ServerID, err)
	}

	names := make([]string, 0, len(remoteTools))
	for _, remote := range remoteTools {
		name := cfg.ToolNamePrefix + remote.Name
		tool := &RemoteTool{
			serverID:    cfg.ServerID,
			remoteName:  remote.Name,
			name:        name,
			description: remote.Description,
			schema:      tools.MapInputSchema(remote.InputSchema),
			manager:     r.manager,
		}
		def := &tools.Definition{
			Name:        name,
			Description: remote.Description,
			Schema:      tool.Schema(),
			Factory:     func() tools.Tool { return tool },
		}
		if err := r.registry.Register(def); err != nil {
			logging.Warn("Registrar", "Skipping tool %s from %s: %v", name, cfg.ServerID, err)
			continue
		}
		names = append(names, name)
	}

	r.replaceRegistrations(cfg.ServerID, names)
	logging.Info("Registrar", "Registered %d tools from server %s", len(names), cfg.ServerID)
	return nil
}

// replaceRegistrations swaps the server's tracked names, unregistering
// any previously registered name that is no longer present.
func (r *Registrar) replaceRegistrations(serverID string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]bool, len(names))
	for _, name := range names {
		current[name] = true
	}
	for _, old := range r.byServer[serverID] {
		if !current[old] {
			r.registry.Unregister(old)
		}
	}
	r.byServer[serverID] = names
}

// UnregisterServer removes every tool the server contributed and
// closes its session.
func (r *Registrar) UnregisterServer(serverID string) {
	r.mu.Lock()
	names := r.byServer[serverID]
	delete(r.byServer, serverID)
	r.mu.Unlock()

	for _, name := range names {
		r.registry.Unregister(name)
	}
	r.manager.CloseSession(serverID)

	if len(names) > 0 {
		logging.Info("Registrar", "Unregistered %d tools from server %s", len(names), serverID)
	}
}

// RegisteredFor returns the sorted tool names contributed by a server.
func (r *Registrar) RegisteredFor(serverID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.byServer[serverID]))
	copy(names, r.byServer[serverID])
	sort.Strings(names)
	return names
}

// AllRegistered returns every tracked tool name, sorted.
func (r *Registrar) AllRegistered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, serverNames := range r.byServer {
		names = append(names, serverNames...)
	}
	sort.Strings(names)
	return names
}
