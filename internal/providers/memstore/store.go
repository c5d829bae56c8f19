// Package memstore is an in-memory key/value capability provider used by the
// demo commands and the safety tests. It sits at the interface boundary: the
// core only ever sees it through a CapabilityAdapter.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"thoth/internal/adapter"
	"thoth/internal/safety"
)

// Store is a mutex-guarded key/value map. It implements adapter.Provider
// and safety.ObservableState.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Get reads one key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set writes one key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes one key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// replace swaps in a full snapshot.
func (s *Store) replace(snapshot map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		s.data[k] = v
	}
}

// Operation implements adapter.Provider.
func (s *Store) Operation(name string) (adapter.OperationFunc, bool) {
	switch name {
	case "write":
		return s.opWrite, true
	case "delete":
		return s.opDelete, true
	case "read":
		return s.opRead, true
	case "restore":
		return s.opRestore, true
	default:
		return nil, false
	}
}

// Capabilities returns the capability map used when registering the store's
// adapter: writes and deletes are mutating with restore as compensator.
func Capabilities() map[string]adapter.Capability {
	return map[string]adapter.Capability{
		"store_write":   {Operation: "write", Mutating: true, Compensator: "store_restore", Footprint: "key"},
		"store_delete":  {Operation: "delete", Mutating: true, Compensator: "store_restore", Footprint: "key"},
		"store_read":    {Operation: "read"},
		"store_restore": {Operation: "restore"},
	}
}

func stringParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing param %q", name)
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %q must be a string", name)
	}
	return v, nil
}

func (s *Store) opWrite(_ context.Context, params map[string]any) (map[string]any, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	value, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	s.Set(key, value)
	return map[string]any{"key": key, "written": true}, nil
}

func (s *Store) opDelete(_ context.Context, params map[string]any) (map[string]any, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	_, existed := s.Get(key)
	s.Delete(key)
	return map[string]any{"key": key, "existed": existed}, nil
}

func (s *Store) opRead(_ context.Context, params map[string]any) (map[string]any, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	value, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return map[string]any{"key": key, "value": value}, nil
}

// opRestore is the compensating operation. A full checkpoint snapshot wins
// over the single-key form.
func (s *Store) opRestore(_ context.Context, params map[string]any) (map[string]any, error) {
	if raw, ok := params[safety.ParamCheckpointState]; ok {
		if snapshot, ok := raw.(map[string]string); ok {
			s.replace(snapshot)
			return map[string]any{"restored_keys": len(snapshot)}, nil
		}
	}

	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	existed, _ := params[safety.ParamCheckpointExisted].(bool)
	if !existed {
		s.Delete(key)
		return map[string]any{"key": key, "restored": "absent"}, nil
	}
	value, _ := params[safety.ParamCheckpointValue].(string)
	s.Set(key, value)
	return map[string]any{"key": key, "restored": "value"}, nil
}
