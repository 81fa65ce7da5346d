package dag

import (
	"fmt"
	"sync"
)

// State carries data between nodes. It is safe for concurrent use by the
// nodes of one level.
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewState creates an empty State.
func NewState() *State {
	return &State{data: make(map[string]any)}
}

// Get retrieves a raw value by key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a raw value by key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Port is a typed accessor for one State key. Producing and consuming
// nodes share the Port value, so a type mismatch between them fails to
// compile instead of surfacing mid-run.
type Port[T any] struct {
	Key string
}

// Read retrieves the port's value. A missing key or a type mismatch is an
// error; both indicate a mis-wired graph.
func Read[T any](state *State, port Port[T]) (T, error) {
	var zero T
	raw, ok := state.Get(port.Key)
	if !ok {
		return zero, fmt.Errorf("dag: state key %q not found", port.Key)
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("dag: state key %q: expected %T, got %T", port.Key, zero, raw)
	}
	return val, nil
}

// Write stores the port's value.
func Write[T any](state *State, port Port[T], value T) {
	state.Set(port.Key, value)
}
