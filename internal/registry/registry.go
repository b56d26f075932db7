// Package registry holds the single active-session slot. All admission and
// session-start decisions go through TryAcquire/Release/IsOccupied; the slot
// itself is never exposed.
package registry

import (
	"context"
	"sync"
)

// Registry holds at most one session identifier at any instant.
type Registry interface {
	// TryAcquire claims the slot for id if it is empty.
	TryAcquire(ctx context.Context, id string) bool
	// Release clears the slot only if it still holds id.
	Release(ctx context.Context, id string)
	IsOccupied(ctx context.Context) bool
	// Current returns the held id, or "" when empty.
	Current(ctx context.Context) string
}

// Memory is an in-process Registry.
type Memory struct {
	mu     sync.Mutex
	active string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) TryAcquire(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "" {
		return false
	}
	m.active = id
	return true
}

func (m *Memory) Release(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == id {
		m.active = ""
	}
}

func (m *Memory) IsOccupied(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != ""
}

func (m *Memory) Current(_ context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
