package cache

import (
	"context"
	"sync"
	"time"

	"github.com/telemed-live/videocall-service/internal/domain"
)

// MemorySessionCache is an in-process SessionCache for single-node
// deployments and tests.
type MemorySessionCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	session domain.Session
	expires time.Time
}

// NewMemorySessionCache creates an empty in-memory cache.
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemorySessionCache) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, sessionID)
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	session := entry.session
	return &session, nil
}

func (c *MemorySessionCache) Set(_ context.Context, session *domain.Session, ttl time.Duration) error {
	entry := memoryEntry{session: *session}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[session.SessionID] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemorySessionCache) Close() error {
	return nil
}
