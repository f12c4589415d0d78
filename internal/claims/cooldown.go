package claims

import (
	"context"
	"sync"
	"time"
)

// MemoryCooldown is the in-process Cooldown used when Redis is not
// configured. It covers a single instance only.
type MemoryCooldown struct {
	mu    sync.Mutex
	armed map[string]time.Time
}

// NewMemoryCooldown returns an empty in-process cooldown.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{armed: make(map[string]time.Time)}
}

// Allow implements Cooldown. A true result arms the window for key.
func (m *MemoryCooldown) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if until, ok := m.armed[key]; ok && now.Before(until) {
		return false, nil
	}
	m.armed[key] = now.Add(window)
	return true, nil
}
