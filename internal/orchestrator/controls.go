package orchestrator

import (
	"context"
	"sync"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// MemoryControls keeps the pause flag and whitelist in process.
type MemoryControls struct {
	mu        sync.RWMutex
	paused    bool
	whitelist map[models.Address]struct{}
}

func NewMemoryControls() *MemoryControls {
	return &MemoryControls{whitelist: make(map[models.Address]struct{})}
}

func (m *MemoryControls) Paused(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused, nil
}

func (m *MemoryControls) SetPaused(_ context.Context, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	return nil
}

func (m *MemoryControls) IsWhitelisted(_ context.Context, addr models.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.whitelist[addr]
	return ok, nil
}

func (m *MemoryControls) Whitelist(_ context.Context, addr models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[addr] = struct{}{}
	return nil
}

func (m *MemoryControls) Unwhitelist(_ context.Context, addr models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelist, addr)
	return nil
}
