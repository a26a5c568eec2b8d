package colloquy

import (
	"context"
	"encoding/json"
	"sync"
)

// Checkpointer persists dialogue state between turns, keyed by session id.
// Load returns (nil, nil) for an unknown session. Implementations must
// round-trip state losslessly; the engine reads once and writes once per
// turn.
type Checkpointer interface {
	Load(ctx context.Context, sessionID string) (*DialogueState, error)
	Save(ctx context.Context, sessionID string, state *DialogueState) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// MemoryCheckpointer is an in-process Checkpointer. States are stored as
// serialised JSON so Load always returns an independent copy, matching the
// isolation a durable backend provides.
type MemoryCheckpointer struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var _ Checkpointer = (*MemoryCheckpointer)(nil)

// NewMemoryCheckpointer creates an empty in-memory store.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{states: make(map[string][]byte)}
}

// Load implements Checkpointer.
func (m *MemoryCheckpointer) Load(_ context.Context, sessionID string) (*DialogueState, error) {
	m.mu.RLock()
	data, ok := m.states[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state DialogueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save implements Checkpointer.
func (m *MemoryCheckpointer) Save(_ context.Context, sessionID string, state *DialogueState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.states[sessionID] = data
	m.mu.Unlock()
	return nil
}

// Delete implements Checkpointer.
func (m *MemoryCheckpointer) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
	return nil
}

// Close implements Checkpointer.
func (m *MemoryCheckpointer) Close() error { return nil }
