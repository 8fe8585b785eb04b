package mcpserver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"agentmux/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Store holds validated server configurations keyed by server id.
// It is purely an in-memory map: loading a config never opens a
// connection. All loaders validate every entry before storing any of
// them, so a failed load leaves the store untouched.
type Store struct {
	mu      sync.RWMutex
	configs map[string]*ServerConfig
}

// NewStore creates an empty configuration store.
func NewStore() *Store {
	return &Store{
		configs: make(map[string]*ServerConfig),
	}
}

// rawServerConfig accepts server_name as an alias for server_id, which
// some client configs use.
type rawServerConfig struct {
	ServerConfig `yaml:",inline"`
	ServerName   string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
}

func decodeEntry(entry map[string]interface{}) (*ServerConfig, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config entry: %w", err)
	}

	var raw rawServerConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode config entry: %w", err)
	}

	cfg := raw.ServerConfig
	if cfg.ServerID == "" {
		cfg.ServerID = raw.ServerName
	}
	return &cfg, nil
}

// LoadFile parses server configurations from a JSON or YAML file
// (chosen by extension). The document may be a single config object, an
// array of config objects, or an object mapping server id to config
// body; for the latter the outer key is authoritative and overrides any
// identifier embedded in the body. Returns the newly parsed configs.
func (s *Store) LoadFile(path string) ([]*ServerConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var doc interface{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON from %s: %w", path, err)
		}
	}

	configs, err := s.parseDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s.storeAll(configs)
	logging.Info("ConfigStore", "Loaded %d server configs from %s", len(configs), path)
	return configs, nil
}

func (s *Store) parseDocument(doc interface{}) ([]*ServerConfig, error) {
	switch v := doc.(type) {
	case []interface{}:
		entries := make([]map[string]interface{}, 0, len(v))
		for i, item := range v {
			entry, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("config entry %d is not an object", i)
			}
			entries = append(entries, entry)
		}
		return s.parseList(entries)
	case map[string]interface{}:
		// An object carrying its own identifier or transport type is a
		// single config; otherwise it maps server id to config body.
		if _, ok := v["server_id"]; ok {
			return s.parseList([]map[string]interface{}{v})
		}
		if _, ok := v["server_name"]; ok {
			return s.parseList([]map[string]interface{}{v})
		}
		if _, ok := v["transport_type"]; ok {
			return s.parseList([]map[string]interface{}{v})
		}
		byID := make(map[string]map[string]interface{}, len(v))
		for id, body := range v {
			entry, ok := body.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("config body for %q is not an object", id)
			}
			byID[id] = entry
		}
		return s.parseMap(byID)
	default:
		return nil, fmt.Errorf("config document must be an object or an array")
	}
}

func (s *Store) parseList(entries []map[string]interface{}) ([]*ServerConfig, error) {
	configs := make([]*ServerConfig, 0, len(entries))
	for i, entry := range entries {
		cfg, err := decodeEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("config entry %d: %w", i, err)
		}
		if cfg.ServerID == "" {
			return nil, fmt.Errorf("config entry %d is missing server_id", i)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (s *Store) parseMap(entries map[string]map[string]interface{}) ([]*ServerConfig, error) {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	configs := make([]*ServerConfig, 0, len(entries))
	for _, id := range ids {
		cfg, err := decodeEntry(entries[id])
		if err != nil {
			return nil, fmt.Errorf("config for %q: %w", id, err)
		}
		// The outer key is authoritative.
		cfg.ServerID = id
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// LoadList parses and stores a slice of raw config entries, each of
// which must carry its own server_id (or server_name).
func (s *Store) LoadList(entries []map[string]interface{}) ([]*ServerConfig, error) {
	configs, err := s.parseList(entries)
	if err != nil {
		return nil, err
	}
	s.storeAll(configs)
	return configs, nil
}

// LoadMap parses and stores raw config entries keyed by server id. The
// outer key wins over any identifier embedded in the body.
func (s *Store) LoadMap(entries map[string]map[string]interface{}) ([]*ServerConfig, error) {
	configs, err := s.parseMap(entries)
	if err != nil {
		return nil, err
	}
	s.storeAll(configs)
	return configs, nil
}

// Add validates and stores a single typed config, overwriting any
// existing entry with the same id.
func (s *Store) Add(cfg *ServerConfig) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.storeAll([]*ServerConfig{cfg})
	return nil
}

// AddRaw validates and stores a single raw config entry, which must
// carry its own identifier. Returns the parsed config.
func (s *Store) AddRaw(entry map[string]interface{}) (*ServerConfig, error) {
	configs, err := s.parseList([]map[string]interface{}{entry})
	if err != nil {
		return nil, err
	}
	s.storeAll(configs)
	return configs[0], nil
}

func (s *Store) storeAll(configs []*ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range configs {
		if _, exists := s.configs[cfg.ServerID]; exists {
			logging.Warn("ConfigStore", "Overwriting existing config for server %q", cfg.ServerID)
		}
		s.configs[cfg.ServerID] = cfg
	}
}

// Get returns the config for a server id, or false when absent.
func (s *Store) Get(serverID string) (*ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[serverID]
	return cfg, ok
}

// All returns every stored config, sorted by server id.
func (s *Store) All() []*ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ServerConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ServerID < result[j].ServerID
	})
	return result
}

// Clear removes every stored config.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = make(map[string]*ServerConfig)
}
