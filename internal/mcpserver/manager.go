package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentmux/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// ErrServerNotFound is returned when a session is requested for a
// server id with no stored config.
var ErrServerNotFound = errors.New("server not found")

// ErrServerDisabled is returned when a session is requested for a
// server whose config is disabled.
var ErrServerDisabled = errors.New("server is disabled")

// Manager owns one live session per server id. Session lookups are
// cheap cache hits; creation for the same id is collapsed through a
// singleflight group so concurrent callers share a single Initialize.
//
// The manager never reconnects implicitly: a session that dropped its
// connection stays in the cache until CloseSession evicts it, and
// operations on it fail fast.
type Manager struct {
	store     *Store
	newClient ClientFactory

	mu       sync.RWMutex
	sessions map[string]MCPClient
	group    singleflight.Group
}

// NewManager creates a session manager backed by the given config store.
func NewManager(store *Store) *Manager {
	return NewManagerWithFactory(store, NewClientFromConfig)
}

// NewManagerWithFactory creates a session manager with a custom client
// factory, used by tests to substitute fakes.
func NewManagerWithFactory(store *Store, factory ClientFactory) *Manager {
	return &Manager{
		store:     store,
		newClient: factory,
		sessions:  make(map[string]MCPClient),
	}
}

// Store returns the config store backing this manager.
func (m *Manager) Store() *Store {
	return m.store
}

// Session returns the live session for a server, creating and
// initializing one if none exists. Concurrent calls for the same id
// result in exactly one Initialize.
func (m *Manager) Session(ctx context.Context, serverID string) (MCPClient, error) {
	m.mu.RLock()
	session, ok := m.sessions[serverID]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	result, err, _ := m.group.Do(serverID, func() (interface{}, error) {
		// Re-check under the group: a concurrent creator may have won.
		m.mu.RLock()
		session, ok := m.sessions[serverID]
		m.mu.RUnlock()
		if ok {
			return session, nil
		}
		return m.createSession(ctx, serverID)
	})
	if err != nil {
		return nil, err
	}
	return result.(MCPClient), nil
}

func (m *Manager) createSession(ctx context.Context, serverID string) (MCPClient, error) {
	cfg, ok := m.store.Get(serverID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("%w: %s", ErrServerDisabled, serverID)
	}

	client, err := m.newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", serverID, err)
	}

	logging.Debug("SessionManager", "Initializing session for server %s", serverID)

	if err := client.Initialize(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.Debug("SessionManager", "Error closing failed session for %s: %v", serverID, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", serverID, err)
	}

	m.mu.Lock()
	m.sessions[serverID] = client
	m.mu.Unlock()

	logging.Info("SessionManager", "Session established for server %s", serverID)
	return client, nil
}

// HasSession reports whether a live session is cached for the server.
func (m *Manager) HasSession(serverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[serverID]
	return ok
}

// CloseSession closes and evicts the session for a server. Closing a
// server with no session is a no-op; close errors are logged, not
// returned.
func (m *Manager) CloseSession(serverID string) {
	m.mu.Lock()
	session, ok := m.sessions[serverID]
	if ok {
		delete(m.sessions, serverID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := session.Close(); err != nil {
		logging.Warn("SessionManager", "Error closing session for %s: %v", serverID, err)
	}
	logging.Debug("SessionManager", "Session closed for server %s", serverID)
}

// CloseAll closes and evicts every cached session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]MCPClient)
	m.mu.Unlock()

	for serverID, session := range sessions {
		if err := session.Close(); err != nil {
			logging.Warn("SessionManager", "Error closing session for %s: %v", serverID, err)
		}
	}

	if len(sessions) > 0 {
		logging.Info("SessionManager", "Closed %d sessions", len(sessions))
	}
}
