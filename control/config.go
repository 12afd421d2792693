// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.
// Collective tuning knobs live here under dotted names and are read by name
// on every call, so a SetConfig is observed by the next collective.

package control

import (
	"fmt"
	"strconv"
	"sync"
)

// Configuration keys read by the collective runtime.
const (
	KeyAllgatherShort = "allgather.short_msg_size"
	KeyAllgatherLong  = "allgather.long_msg_size"
	KeyAllgatherIntra = "allgather.algorithm_intra"
	KeyAllgatherInter = "allgather.algorithm_inter"
	KeyAllreduceIntra = "allreduce.algorithm_intra"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns the raw value stored under key.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// GetInt64 returns key as an integer, def when absent. Strings and the usual
// numeric types decoded from YAML or TOML are accepted.
func (cs *ConfigStore) GetInt64(key string, def int64) (int64, error) {
	v, ok := cs.Get(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return def, fmt.Errorf("config %q: %T is not an integer", key, v)
}

// GetString returns key formatted as a string, def when absent.
func (cs *ConfigStore) GetString(key, def string) string {
	v, ok := cs.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetConfig merges new values and dispatches reload if needed.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.dispatchReload()
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners; must be called with cs.mu held.
func (cs *ConfigStore) dispatchReload() {
	for _, fn := range cs.listeners {
		go fn()
	}
}
